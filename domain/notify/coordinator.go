// Package notify implements the Notification Coordinator of spec §4.5: it
// decides whether a candidate event produces a chat message, applies
// priority overrides, deduplicates, and dispatches.
package notify

import (
	"context"
	"fmt"

	"github.com/guarzo/wanderer-notifier/domain/character"
	"github.com/guarzo/wanderer-notifier/domain/system"
	"github.com/guarzo/wanderer-notifier/internal/chattransport"
	"github.com/guarzo/wanderer-notifier/internal/logging"
	"github.com/guarzo/wanderer-notifier/internal/metrics"
	"github.com/guarzo/wanderer-notifier/internal/resilience"
	"github.com/guarzo/wanderer-notifier/internal/voice"
)

// Kind distinguishes notification decision tables; it is distinct from
// metrics.Kind because a single notification touches several metrics
// counters (received, skipped, sent) for one decision kind.
type Kind string

const (
	KindSystem    Kind = "system"
	KindCharacter Kind = "character"
	KindKill      Kind = "kill"
)

// Destinations maps each decision kind to a chat destination.
type Destinations struct {
	System    string
	Character string
	Kill      string
}

func (d Destinations) forKind(k Kind) string {
	switch k {
	case KindSystem:
		return d.System
	case KindCharacter:
		return d.Character
	default:
		return d.Kill
	}
}

// Config configures a Coordinator.
type Config struct {
	EnabledKinds                  map[Kind]bool // nil means "all enabled"
	PrioritySystemsOnly            bool
	VoiceParticipantNotifications bool
	FallbackToHere                 bool
	Destinations                   Destinations
	VoiceChannelID                 string

	Priority  *PrioritySet
	Dedup     *DedupCache
	Voice     voice.Subsystem
	Transport chattransport.Transport
	Breaker   *resilience.CircuitBreaker
	Metrics   *metrics.State
	Logger    *logging.Logger
}

// Coordinator is stateless aside from its collaborators; concurrency
// safety comes from PrioritySet/DedupCache/MetricsState each being their
// own serialized owner (spec §5: "a stateless Coordinator guarded by the
// DedupCache").
type Coordinator struct {
	cfg Config
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewFromEnv("coordinator")
	}
	return &Coordinator{cfg: cfg}
}

func (c *Coordinator) enabled(kind Kind) bool {
	if c.cfg.EnabledKinds == nil {
		return true
	}
	v, ok := c.cfg.EnabledKinds[kind]
	if !ok {
		return true
	}
	return v
}

// decide implements the priority-system decision table of spec §4.5.
func (c *Coordinator) decide(kind Kind, isPriority bool) (send, mention bool) {
	if isPriority {
		return true, true
	}
	if c.enabled(kind) && !c.cfg.PrioritySystemsOnly {
		return true, false
	}
	return false, false
}

// NotifySystemAdded evaluates and (possibly) dispatches a notification for
// a newly tracked system.
func (c *Coordinator) NotifySystemAdded(ctx context.Context, slug string, sys system.System) error {
	dedupKey := fmt.Sprintf("system:%s:%d", slug, sys.SolarSystemID)
	return c.process(ctx, KindSystem, sys.Name, dedupKey, func(mention string) chattransport.Payload {
		desc := fmt.Sprintf("New system tracked on %s: %s", slug, sys.Name)
		if mention != "" {
			desc = mention + " " + desc
		}
		return chattransport.Payload{
			Embed: &chattransport.Embed{
				Title:       "System Added",
				Description: desc,
			},
		}
	})
}

// NotifyCharacterAdded evaluates and (possibly) dispatches a notification
// for a newly tracked character.
func (c *Coordinator) NotifyCharacterAdded(ctx context.Context, slug string, ch character.Character) error {
	dedupKey := fmt.Sprintf("character:%s:%s", slug, ch.CharacterID)
	return c.process(ctx, KindCharacter, ch.Name, dedupKey, func(mention string) chattransport.Payload {
		desc := fmt.Sprintf("New character tracked on %s: %s", slug, ch.Name)
		if mention != "" {
			desc = mention + " " + desc
		}
		return chattransport.Payload{
			Embed: &chattransport.Embed{
				Title:       "Character Added",
				Description: desc,
			},
		}
	})
}

// NotifyKill evaluates and (possibly) dispatches a notification for a
// killmail matched against the Registry's reverse indexes. victimName
// feeds priority fingerprinting.
func (c *Coordinator) NotifyKill(ctx context.Context, slug string, killmailID int64, victimName, summary string) error {
	dedupKey := fmt.Sprintf("kill:%d", killmailID)
	return c.process(ctx, KindKill, victimName, dedupKey, func(mention string) chattransport.Payload {
		desc := summary
		if mention != "" {
			desc = mention + " " + desc
		}
		return chattransport.Payload{
			Embed: &chattransport.Embed{
				Title:       "Kill",
				Description: desc,
			},
		}
	})
}

func (c *Coordinator) process(ctx context.Context, kind Kind, priorityName, dedupKey string, build func(mention string) chattransport.Payload) error {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Increment(metrics.KindKillmailReceived)
	}

	isPriority := c.cfg.Priority != nil && c.cfg.Priority.ContainsName(priorityName)
	send, mention := c.decide(kind, isPriority)
	if !send {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Increment(metrics.KindKillmailSkipped)
		}
		return nil
	}

	if c.cfg.Dedup != nil {
		seen, err := c.cfg.Dedup.SeenAndMark(ctx, dedupKey)
		if err != nil {
			c.cfg.Logger.WithError(err).Warn("dedup check failed, proceeding without dedup")
		} else if seen {
			return nil
		}
	}

	mentionText := ""
	if mention {
		mentionText = c.composeMention()
	}

	firstEver := false
	if c.cfg.Metrics != nil {
		firstEver = c.cfg.Metrics.FirstNotification(metrics.Kind(kind))
	}
	payload := build(mentionText)
	if firstEver {
		banner := "_This is the first notification of this kind — future ones will be quieter._\n\n"
		if payload.Embed != nil {
			payload.Embed.Description = banner + payload.Embed.Description
		}
	}

	destination := c.cfg.Destinations.forKind(kind)
	dispatch := func() error {
		return c.cfg.Transport.SendMessage(ctx, destination, payload)
	}
	var err error
	if c.cfg.Breaker != nil {
		err = c.cfg.Breaker.Execute(dispatch)
	} else {
		err = dispatch()
	}
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.Increment(metrics.KindKillmailError)
		}
		c.cfg.Logger.WithError(err).Warn("notification dispatch failed")
		return err
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.MarkNotificationSent(metrics.Kind(kind))
		c.cfg.Metrics.Increment(metrics.KindNotificationSent)
	}
	return nil
}

// composeMention implements spec §4.5's mention-composition precedence:
// voice-participant mentions, else @here fallback, else no mention.
func (c *Coordinator) composeMention() string {
	if c.cfg.VoiceParticipantNotifications && c.cfg.Voice != nil {
		participants := c.cfg.Voice.Participants(c.cfg.VoiceChannelID)
		if len(participants) > 0 {
			mention := ""
			for i, p := range participants {
				if i > 0 {
					mention += " "
				}
				mention += "@" + p
			}
			return mention
		}
	}
	if c.cfg.FallbackToHere {
		return "@here"
	}
	return ""
}
