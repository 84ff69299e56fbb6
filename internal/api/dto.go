package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire records as the remote API sends them. Laravel is loose about scalar
// types, so ids, ints and flags go through the Flex* coercing types.

type UserDTO struct {
	ID                FlexString   `json:"id"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	Name              string       `json:"name"`
	Age               FlexInt      `json:"age"`
	Bio               *string      `json:"bio"`
	Photos            []PhotoDTO   `json:"photos"`
	Interests         InterestList `json:"interests"`
	Distance          *float64     `json:"distance"`
	IsVerified        FlexBool     `json:"is_verified"`
	IsPremium         FlexBool     `json:"is_premium"`
	IsOnline          FlexBool     `json:"is_online"`
	Rating            *float64     `json:"rating"`
	ProfileCompletion *FlexInt     `json:"profile_completion"`
}

type PhotoDTO struct {
	ID     FlexString `json:"id"`
	URL    string     `json:"url"`
	Order  FlexInt    `json:"order"`
	IsMain FlexBool   `json:"is_main"`
}

// ConsumableDTO is the quota payload of /consumable/user/{id}. Servers send
// either flat counters or a list of per-type records; records win.
type ConsumableDTO struct {
	DailyLikesUsed  FlexInt         `json:"daily_likes_used"`
	DailyLikesLimit FlexInt         `json:"daily_likes_limit"`
	SuperLikesUsed  FlexInt         `json:"super_likes_used"`
	SuperLikesLimit FlexInt         `json:"super_likes_limit"`
	RewindsUsed     FlexInt         `json:"rewinds_used"`
	RewindsLimit    FlexInt         `json:"rewinds_limit"`
	IsPremium       FlexBool        `json:"is_premium"`
	Consumables     []ConsumableRow `json:"consumables"`
}

type ConsumableRow struct {
	Type  string  `json:"type"`
	Used  FlexInt `json:"used"`
	Limit FlexInt `json:"limit"`
}

type SwipeResponseDTO struct {
	IsMatch      FlexBool   `json:"is_match"`
	MatchID      FlexString `json:"match_id"`
	MatchMessage *string    `json:"match_message"`
}

type SwipeRequest struct {
	UserID       string `json:"user_id"`
	TargetUserID string `json:"target_user_id"`
	Action       string `json:"action"`
}

type PreferencesRequest struct {
	MinAge           int      `json:"min_age"`
	MaxAge           int      `json:"max_age"`
	MaxDistance      int      `json:"max_distance"`
	GenderPreference string   `json:"gender_preference"`
	OnlineOnly       bool     `json:"online_only"`
	VerifiedOnly     bool     `json:"verified_only"`
	Interests        []string `json:"interests"`
}

type ViewRequest struct {
	ViewerID     string `json:"viewer_id"`
	ViewedUserID string `json:"viewed_user_id"`
}

type ReportRequest struct {
	UserID         string `json:"user_id"`
	ReportedUserID string `json:"reported_user_id"`
	Reason         string `json:"reason"`
}

// UserList decodes either a bare array or a paginator object wrapping it.
type UserList []UserDTO

func (l *UserList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var users []UserDTO
		if err := json.Unmarshal(b, &users); err != nil {
			return err
		}
		*l = users
		return nil
	}

	var page struct {
		Data  []UserDTO `json:"data"`
		Users []UserDTO `json:"users"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		return err
	}
	if page.Data != nil {
		*l = page.Data
	} else {
		*l = page.Users
	}
	return nil
}

// InterestList accepts ["music"] as well as [{"name":"music"}].
type InterestList []string

func (l *InterestList) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("interest: %w", err)
		}
		if obj.Name = strings.TrimSpace(obj.Name); obj.Name != "" {
			out = append(out, obj.Name)
		}
	}
	*l = out
	return nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = FlexString(n.String())
	return nil
}

// FlexInt accepts numbers (floats are truncated) and numeric strings.
type FlexInt int

func (i *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*i = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*i = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*i = FlexInt(int(f))
	return nil
}

// FlexBool accepts true/false, 0/1 and their string forms.
type FlexBool bool

func (v *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*v = false
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		*v = true
	case "false", "0", "":
		*v = false
	default:
		return fmt.Errorf("expected boolean, got %s", b)
	}
	return nil
}

func isNull(b []byte) bool {
	return len(b) == 0 || string(b) == "null"
}
