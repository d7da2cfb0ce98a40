package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
)

// TelegramUser is the "user" field of Mini-App init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

func (u TelegramUser) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// InitDataValidator checks the signature Telegram puts on Mini-App launch data.
type InitDataValidator struct {
	secret     []byte
	maxAge     time.Duration
	teacherIDs map[string]bool
	now        func() time.Time
}

func NewInitDataValidator(botToken string, maxAge time.Duration, teacherIDs []string) *InitDataValidator {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))

	teachers := make(map[string]bool, len(teacherIDs))
	for _, id := range teacherIDs {
		teachers[id] = true
	}
	return &InitDataValidator{
		secret:     mac.Sum(nil),
		maxAge:     maxAge,
		teacherIDs: teachers,
		now:        time.Now,
	}
}

// Validate verifies raw init data and returns the caller it describes.
// Telegram ids listed as teachers get the teacher role.
func (v *InitDataValidator) Validate(raw string) (*models.Principal, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalidInitData)
	}
	expected := v.sign(values)
	if !hmac.Equal([]byte(hash), []byte(expected)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidInitData)
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInvalidInitData)
	}
	if v.maxAge > 0 && v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return nil, ErrInitDataExpired
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: bad user", ErrInvalidInitData)
	}

	id := strconv.FormatInt(user.ID, 10)
	role := models.RoleStudent
	if v.teacherIDs[id] {
		role = models.RoleTeacher
	}
	return &models.Principal{
		ID:       id,
		Name:     user.DisplayName(),
		Username: user.Username,
		Role:     role,
	}, nil
}

// sign builds the data-check string (sorted key=value lines without hash) and
// returns its hex HMAC.
func (v *InitDataValidator) sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
