package helpers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strconv"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidClickRef = apperr.Validation("clickRef", "invalid click reference")

// ClickRef identifies who clicked through to a store, and with which coupon.
type ClickRef struct {
	UserID   uuid.UUID
	StoreID  uuid.UUID
	CouponID *uuid.UUID
}

// ClickCipher seals click references with AES-GCM so affiliate networks can
// echo them back without learning or forging user ids.
type ClickCipher struct {
	aead cipher.AEAD
}

func NewClickCipher(secret string) (*ClickCipher, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "click cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "click cipher")
	}
	return &ClickCipher{aead: gcm}, nil
}

func (cc *ClickCipher) Encrypt(ref ClickRef) (string, error) {
	plaintext := ref.UserID.String() + "|" + ref.StoreID.String()
	if ref.CouponID != nil {
		plaintext += "|" + ref.CouponID.String()
	}

	nonce := make([]byte, cc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "click nonce")
	}
	sealed := cc.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (cc *ClickCipher) Decrypt(encoded string) (*ClickRef, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidClickRef
	}
	n := cc.aead.NonceSize()
	if len(data) < n {
		return nil, ErrInvalidClickRef
	}
	plaintext, err := cc.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, ErrInvalidClickRef
	}

	parts := strings.Split(string(plaintext), "|")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, ErrInvalidClickRef
	}
	ref := &ClickRef{}
	if ref.UserID, err = uuid.Parse(parts[0]); err != nil {
		return nil, ErrInvalidClickRef
	}
	if ref.StoreID, err = uuid.Parse(parts[1]); err != nil {
		return nil, ErrInvalidClickRef
	}
	if len(parts) == 3 {
		couponID, err := uuid.Parse(parts[2])
		if err != nil {
			return nil, ErrInvalidClickRef
		}
		ref.CouponID = &couponID
	}
	return ref, nil
}

func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name, "must be a UUID")
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter.
func QueryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(key, "must be an integer")
	}
	return n, nil
}

func QueryBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation(key, "must be true or false")
	}
	return &b, nil
}

func QueryUUID(c *gin.Context, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(key, "must be a UUID")
	}
	return &id, nil
}

// Pagination reads page and limit; clamping is left to the store.
func Pagination(c *gin.Context) (page, limit int, err error) {
	if page, err = QueryInt(c, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = QueryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
