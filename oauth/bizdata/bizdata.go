// Package bizdata decrypts the user data a WeChat mini program hands to its
// backend. The payload is AES-128-CBC encrypted under the user's session key
// and carries a plaintext watermark naming the app it was encrypted for.
package bizdata

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	ReasonMalformed         = "malformed payload"
	ReasonWatermarkMismatch = "watermark mismatch"
)

// DecryptionError is returned for any failure to open a payload. Cipher,
// padding and parse failures all share ReasonMalformed.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return "decrypt user data: " + e.Reason
}

// Watermark identifies the app and time a payload was produced for.
type Watermark struct {
	AppID     string  `json:"appid"`
	Timestamp FlexInt `json:"timestamp,omitempty"`
}

// UserData is a decrypted mini program record. Raw holds the plaintext JSON
// exactly as decrypted.
type UserData struct {
	OpenID          string          `json:"openId,omitempty"`
	UnionID         string          `json:"unionId,omitempty"`
	NickName        string          `json:"nickName,omitempty"`
	Gender          FlexInt         `json:"gender,omitempty"`
	City            string          `json:"city,omitempty"`
	Province        string          `json:"province,omitempty"`
	Country         string          `json:"country,omitempty"`
	AvatarURL       string          `json:"avatarUrl,omitempty"`
	Language        string          `json:"language,omitempty"`
	PhoneNumber     string          `json:"phoneNumber,omitempty"`
	PurePhoneNumber string          `json:"purePhoneNumber,omitempty"`
	CountryCode     string          `json:"countryCode,omitempty"`
	Watermark       Watermark       `json:"watermark"`
	Raw             json.RawMessage `json:"-"`
}

var errMalformed = &DecryptionError{Reason: ReasonMalformed}

// Decrypt opens a payload with the base64 session key and iv and checks that
// its watermark names appID.
func Decrypt(appID, sessionKey, encryptedData, iv string) (*UserData, error) {
	key, err := base64.StdEncoding.DecodeString(sessionKey)
	if err != nil {
		return nil, errMalformed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, errMalformed
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, errMalformed
	}

	plaintext, err := decryptCBC(key, ivBytes, ciphertext)
	if err != nil {
		return nil, errMalformed
	}

	if !isObject(plaintext) {
		return nil, errMalformed
	}
	var envelope struct {
		Watermark Watermark `json:"watermark"`
	}
	if err := unmarshalLenient(plaintext, &envelope); err != nil {
		return nil, errMalformed
	}
	if envelope.Watermark.AppID == "" || envelope.Watermark.AppID != appID {
		return nil, &DecryptionError{Reason: ReasonWatermarkMismatch}
	}

	var data UserData
	if err := unmarshalLenient(plaintext, &data); err != nil {
		return nil, errMalformed
	}
	data.Raw = plaintext
	return &data, nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return json.Valid(b) && len(b) > 0 && b[0] == '{'
}

// unmarshalLenient decodes what it can. A field whose JSON type does not
// match is left zero; Raw still carries the record unchanged.
func unmarshalLenient(b []byte, v interface{}) error {
	err := json.Unmarshal(b, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// Encrypt seals plaintext the way the WeChat client does. It exists for tests
// and tooling; servers only ever decrypt.
func Encrypt(sessionKey, iv string, plaintext []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(sessionKey)
	if err != nil {
		return "", err
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", err
	}
	if len(key) != aes.BlockSize || len(ivBytes) != aes.BlockSize {
		return "", errors.New("session key and iv must be 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, ivBytes).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != aes.BlockSize || len(iv) != aes.BlockSize {
		return nil, errors.New("bad key or iv length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("bad ciphertext length")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, checking every pad byte.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty block")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
