/*
Package randx generates identifiers: time-ordered UUIDs for records and Base62 suffixes for object keys.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// MediaSuffixLength is the length of the random part of a media object key.
	MediaSuffixLength = 12

	// MediaKeyPrefix is the object key prefix shared by every uploaded media file.
	MediaKeyPrefix = "media/"
)

// NewID returns a time-ordered UUID v7 string used for messages and connection requests.
// Ids from one process sort in creation order, which breaks CreatedAt ties.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Base62 returns n cryptographically random Base62 characters.
func Base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MediaKey builds "media/{userID}/{random}{ext}" for a new upload.
func MediaKey(userID, ext string) (string, error) {
	suffix, err := Base62(MediaSuffixLength)
	if err != nil {
		return "", err
	}
	return MediaKeyPrefix + userID + "/" + suffix + ext, nil
}

// OwnsMediaKey reports whether key was issued to userID by MediaKey.
func OwnsMediaKey(userID, key string) bool {
	prefix := MediaKeyPrefix + userID + "/"
	if userID == "" || !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := key[len(prefix):]
	return rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}
