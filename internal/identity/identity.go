package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"

	"github.com/iudanet/shopkeeper/internal/models"
)

// ErrValidationFailed indicates that an OAuth identity payload is malformed
var ErrValidationFailed = errors.New("identity validation failed")

// Identity представляет профиль, подтвержденный OAuth провайдером
type Identity struct {
	Provider  models.Provider // имя провайдера
	ProfileID string          // ID профиля в рамках провайдера
	Email     string          // email из профиля
	Name      string          // отображаемое имя
	AvatarURL string          // URL аватара, может быть пустым
}

// Провайдеры используют разные форматы идентификаторов:
// GitHub и Discord - числовые ID, Google - числовой "sub" до 255 символов
var (
	numericIDPattern = regexp.MustCompile(`^[0-9]{1,32}$`)
	googleSubPattern = regexp.MustCompile(`^[0-9]{1,255}$`)
)

const (
	// MaxNameLen максимальная длина отображаемого имени
	MaxNameLen = 256
	// MaxEmailLen максимальная длина email (RFC 5321)
	MaxEmailLen = 320
)

// Validate проверяет, что identity корректно заполнена для своего провайдера.
// Возвращает ошибку, оборачивающую ErrValidationFailed, с описанием поля.
func Validate(id Identity) error {
	switch id.Provider {
	case models.ProviderGitHub, models.ProviderDiscord:
		if !numericIDPattern.MatchString(id.ProfileID) {
			return fmt.Errorf("%w: %s profile id must be numeric", ErrValidationFailed, id.Provider)
		}
	case models.ProviderGoogle:
		if !googleSubPattern.MatchString(id.ProfileID) {
			return fmt.Errorf("%w: google subject has invalid format", ErrValidationFailed)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrValidationFailed, id.Provider)
	}

	if id.Email == "" || len(id.Email) > MaxEmailLen {
		return fmt.Errorf("%w: email is required", ErrValidationFailed)
	}
	if _, err := mail.ParseAddress(id.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrValidationFailed)
	}

	if id.Name == "" || len(id.Name) > MaxNameLen {
		return fmt.Errorf("%w: name is required and must not exceed %d characters", ErrValidationFailed, MaxNameLen)
	}

	// Аватар опционален, но если задан - только http(s) URL
	if id.AvatarURL != "" {
		u, err := url.Parse(id.AvatarURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("%w: avatar url must be a valid http(s) url", ErrValidationFailed)
		}
	}

	return nil
}
