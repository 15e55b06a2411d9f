package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

// Protocol performs channel moderation on the Farcaster network
type Protocol interface {
	// Like curates a cast into the channel feed
	Like(ctx context.Context, channelID string, cast *farcaster.Cast) error
	// Unlike removes a cast from the channel feed
	Unlike(ctx context.Context, channelID string, cast *farcaster.Cast) error
	Ban(ctx context.Context, channelID string, fid int64) error
	GrantRole(ctx context.Context, channelID, roleID string, fid int64) error
}

// BypassStore adds users to a channel's bypass list
type BypassStore interface {
	AddExcludedUser(ctx context.Context, channelID string, fid int64) error
}

// Dependencies are the collaborators handlers act through. Handlers whose
// collaborator is nil fail with a configuration error when applied.
type Dependencies struct {
	Protocol  Protocol
	Cooldowns CooldownStore
	Bypass    BypassStore
	Downvotes DownvoteStore
}

// Shipped action types
const (
	TypeLike        rules.ActionType = "like"
	TypeUnlike      rules.ActionType = "unlike"
	TypeHideQuietly rules.ActionType = "hideQuietly"
	TypeBan         rules.ActionType = "ban"
	TypeMute        rules.ActionType = "mute"
	TypeCooldown    rules.ActionType = "cooldown"
	TypeAddToBypass rules.ActionType = "addToBypass"
	TypeDownvote    rules.ActionType = "downvote"
	TypeGrantRole   rules.ActionType = "grantRole"
)

// DefaultCooldownHours is used when a cooldown action has no duration
const DefaultCooldownHours = 24

// MaxCooldownHours caps a cooldown at ten years; longer restrictions are bans
const MaxCooldownHours = 24 * 365 * 10

// NewRegistry returns a registry holding every shipped handler
func NewRegistry(deps Dependencies) *Registry {
	registry := NewEmptyRegistry()
	Register(registry, deps)
	return registry
}

// Register adds every shipped handler to registry
func Register(registry *Registry, deps Dependencies) {
	h := &handlers{deps: deps}

	registry.Register(Definition{
		Type:         TypeLike,
		FriendlyName: "Curate",
		Description:  "Curate the cast into the channel",
	}, HandlerFunc(h.like))

	registry.Register(Definition{
		Type:         TypeUnlike,
		FriendlyName: "Uncurate",
		Description:  "Remove the cast from the channel",
	}, HandlerFunc(h.unlike))

	registry.Register(Definition{
		Type:         TypeHideQuietly,
		FriendlyName: "Hide Quietly",
		Description:  "Hide the cast from the channel without notifying the author",
	}, HandlerFunc(h.hideQuietly))

	registry.Register(Definition{
		Type:         TypeBan,
		FriendlyName: "Ban",
		Description:  "Permanently ban the user from the channel",
	}, HandlerFunc(h.ban))

	registry.Register(Definition{
		Type:         TypeMute,
		FriendlyName: "Mute",
		Description:  "Hide every future cast of the user in the channel",
	}, HandlerFunc(h.mute))

	registry.Register(Definition{
		Type:         TypeCooldown,
		FriendlyName: "Cooldown",
		Description:  "Hide the user's casts for a number of hours",
		Args: map[string]rules.ArgDefinition{
			"duration": {Type: "number", FriendlyName: "Duration (hours)"},
		},
		validate: func(args rules.Args) error {
			_, err := durationArg(args)
			return err
		},
	}, HandlerFunc(h.cooldown))

	registry.Register(Definition{
		Type:         TypeAddToBypass,
		FriendlyName: "Add to Bypass",
		Description:  "Add the user to the channel's bypass list",
	}, HandlerFunc(h.addToBypass))

	registry.Register(Definition{
		Type:         TypeDownvote,
		FriendlyName: "Downvote",
		Description:  "Record a downvote against the cast",
		Args: map[string]rules.ArgDefinition{
			"voterFid":       {Type: "number", FriendlyName: "Voter FID", Required: true},
			"voterUsername":  {Type: "string", FriendlyName: "Voter Username"},
			"voterAvatarUrl": {Type: "string", FriendlyName: "Voter Avatar"},
		},
		validate: func(args rules.Args) error {
			_, err := fidArg(args, "voterFid")
			return err
		},
	}, HandlerFunc(h.downvote))

	registry.Register(Definition{
		Type:         TypeGrantRole,
		FriendlyName: "Grant Role",
		Description:  "Grant the user a channel role",
		Args: map[string]rules.ArgDefinition{
			"roleId": {Type: "string", FriendlyName: "Role", Required: true},
		},
	}, HandlerFunc(h.grantRole))
}

type handlers struct {
	deps Dependencies
}

var errNoCast = errors.New("action requires a cast")

func missing(dep string, t rules.ActionType) error {
	return &rules.ConfigurationError{Reason: fmt.Sprintf("action %s requires %s", t, dep)}
}

func (h *handlers) like(ctx context.Context, ac ActionContext) error {
	if !ac.ExecuteOnProtocol || ac.Cast == nil {
		return nil
	}
	if h.deps.Protocol == nil {
		return missing("a protocol client", ac.Action.Type)
	}
	return h.deps.Protocol.Like(ctx, ac.Channel.ID, ac.Cast)
}

func (h *handlers) unlike(ctx context.Context, ac ActionContext) error {
	if !ac.ExecuteOnProtocol || ac.Cast == nil {
		return nil
	}
	if h.deps.Protocol == nil {
		return missing("a protocol client", ac.Action.Type)
	}
	return h.deps.Protocol.Unlike(ctx, ac.Channel.ID, ac.Cast)
}

// hideQuietly leaves the cast uncurated; on the protocol that is an unlike
func (h *handlers) hideQuietly(ctx context.Context, ac ActionContext) error {
	return h.unlike(ctx, ac)
}

func (h *handlers) restrict(ctx context.Context, ac ActionContext, kind CooldownKind, expires *time.Time) error {
	if h.deps.Cooldowns == nil {
		return missing("a cooldown store", ac.Action.Type)
	}
	return h.deps.Cooldowns.Upsert(ctx, &Cooldown{
		AffectedUserID: ac.User.FID,
		ChannelID:      ac.Channel.ID,
		Kind:           kind,
		Active:         true,
		ExpiresAt:      expires,
	})
}

func (h *handlers) ban(ctx context.Context, ac ActionContext) error {
	if err := h.restrict(ctx, ac, KindBan, nil); err != nil {
		return err
	}
	if !ac.ExecuteOnProtocol {
		return nil
	}
	if h.deps.Protocol == nil {
		return missing("a protocol client", ac.Action.Type)
	}
	return h.deps.Protocol.Ban(ctx, ac.Channel.ID, ac.User.FID)
}

func (h *handlers) mute(ctx context.Context, ac ActionContext) error {
	return h.restrict(ctx, ac, KindMute, nil)
}

func (h *handlers) cooldown(ctx context.Context, ac ActionContext) error {
	hours, err := durationArg(ac.Action.Args)
	if err != nil {
		return err
	}
	expires := ac.Now.Add(time.Duration(hours * float64(time.Hour)))
	return h.restrict(ctx, ac, KindCooldown, &expires)
}

func (h *handlers) addToBypass(ctx context.Context, ac ActionContext) error {
	if h.deps.Bypass == nil {
		return missing("a bypass store", ac.Action.Type)
	}
	return h.deps.Bypass.AddExcludedUser(ctx, ac.Channel.ID, ac.User.FID)
}

func (h *handlers) downvote(ctx context.Context, ac ActionContext) error {
	if ac.Cast == nil {
		return errNoCast
	}
	if h.deps.Downvotes == nil {
		return missing("a downvote store", ac.Action.Type)
	}
	voter, err := fidArg(ac.Action.Args, "voterFid")
	if err != nil {
		return err
	}
	username, _ := ac.Action.Args["voterUsername"].(string)
	avatar, _ := ac.Action.Args["voterAvatarUrl"].(string)

	return h.deps.Downvotes.Add(ctx, &Downvote{
		CastHash:       ac.Cast.Hash,
		ChannelID:      ac.Channel.ID,
		FID:            ac.User.FID,
		VoterFID:       voter,
		VoterUsername:  username,
		VoterAvatarURL: avatar,
	})
}

func (h *handlers) grantRole(ctx context.Context, ac ActionContext) error {
	roleID, _ := ac.Action.Args["roleId"].(string)
	if strings.TrimSpace(roleID) == "" {
		return &rules.ConfigurationError{Reason: "action grantRole: missing argument \"roleId\""}
	}
	if !ac.ExecuteOnProtocol {
		return nil
	}
	if h.deps.Protocol == nil {
		return missing("a protocol client", ac.Action.Type)
	}
	return h.deps.Protocol.GrantRole(ctx, ac.Channel.ID, roleID, ac.User.FID)
}

// durationArg reads the cooldown length in hours
func durationArg(args rules.Args) (float64, error) {
	v, ok := args["duration"]
	if !ok || v == nil || v == "" {
		return DefaultCooldownHours, nil
	}
	var hours float64
	switch d := v.(type) {
	case float64:
		hours = d
	case int:
		hours = float64(d)
	case int64:
		hours = float64(d)
	case json.Number:
		f, err := d.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", d)
		}
		hours = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", d)
		}
		hours = f
	default:
		return 0, fmt.Errorf("invalid duration %v", v)
	}
	if math.IsNaN(hours) || hours <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %v", hours)
	}
	if hours > MaxCooldownHours {
		return 0, fmt.Errorf("duration must be at most %d hours, got %v", MaxCooldownHours, hours)
	}
	return hours, nil
}

func fidArg(args rules.Args, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), nil
		}
	case int64:
		if v > 0 {
			return v, nil
		}
	case int:
		if v > 0 {
			return int64(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n, nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid %s %v", key, args[key])
}
