package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const keySize = 32

var (
	//ErrKeyMissing is returned when the configured secret is empty and no transport key can be derived
	ErrKeyMissing = errors.New("encryption secret must not be empty")
	//ErrDecryptionFailed is returned when an opaque payload can not be turned back into plaintext
	ErrDecryptionFailed = errors.New("failed to decrypt data")
)

//Codec encrypts and decrypts report payloads with a pre-shared key using
//AES-256-CBC with PKCS#7 padding. The opaque wire format is base64(iv || ciphertext)
//with a fresh random 16 byte IV per message, so the same plaintext never
//encrypts to the same opaque string twice.
//
//CBC without authentication is malleable; tampering is only detected when it
//happens to break the padding or the UTF-8 decode. An AEAD mode would close
//that gap but would break compatibility with the deployed device firmware.
type Codec struct {
	key []byte
}

//NewCodec derives the 256 bit transport key from the configured secret by
//padding it with zero bytes or truncating it to exactly 32 bytes. An empty
//secret is the one input that can not be normalized and fails construction.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrKeyMissing
	}

	key := make([]byte, keySize)
	copy(key, []byte(secret))

	return &Codec{key: key}, nil
}

//Encrypt turns a plaintext report into an opaque transport string
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

//Decrypt turns an opaque transport string back into the plaintext report.
//All failure modes wrap ErrDecryptionFailed.
func (c *Codec) Decrypt(opaque string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}

	if len(raw) < aes.BlockSize {
		return "", fmt.Errorf("%w: payload is shorter than one cipher block", ErrDecryptionFailed)
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not block aligned", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}

	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

func pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}

	return data[:len(data)-padLen], nil
}
