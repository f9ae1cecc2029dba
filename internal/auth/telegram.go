// Package auth validates Telegram Web App init data signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// TelegramUser is the user object embedded in validated init data.
type TelegramUser struct {
	ID                    int64  `json:"id"`
	IsBot                 bool   `json:"is_bot"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Username              string `json:"username"`
	LanguageCode          string `json:"language_code"`
	IsPremium             bool   `json:"is_premium"`
	AddedToAttachmentMenu bool   `json:"added_to_attachment_menu"`
	AllowsWriteToPM       bool   `json:"allows_write_to_pm"`
	PhotoURL              string `json:"photo_url"`
}

// UserID returns the decimal string form used as the store key.
func (u TelegramUser) UserID() string {
	return strconv.FormatInt(u.ID, 10)
}

// InitData carries the fields extracted from a validated payload.
type InitData struct {
	User       TelegramUser
	StartParam string
}

// Validate checks the HMAC signature of raw Telegram init data against the
// bot token. The data-check string is every key=value pair except hash,
// sorted by key and joined with newlines; the signing key is
// HMAC-SHA256("WebAppData", botToken). Malformed input is reported as
// invalid, never as an error.
func Validate(raw, botToken string) (*InitData, bool) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, false
	}

	suppliedHash := values.Get("hash")
	if suppliedHash == "" {
		return nil, false
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		for _, val := range values[key] {
			pairs = append(pairs, key+"="+val)
		}
	}

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hmacSHA256(secret, []byte(strings.Join(pairs, "\n")))

	supplied, err := hex.DecodeString(suppliedHash)
	if err != nil {
		return nil, false
	}

	if !hmac.Equal(expected, supplied) {
		return nil, false
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil, false
	}
	if user.ID == 0 {
		return nil, false
	}

	return &InitData{
		User:       user,
		StartParam: values.Get("start_param"),
	}, true
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
