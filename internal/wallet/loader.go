package wallet

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// LoadKeypairFile reads signers from path. Accepted formats:
//   - a Solana CLI keypair file: JSON array of 64 byte values
//   - a JSON array of such arrays
//   - base58 secret keys, one per line (blank lines and # comments ignored)
func LoadKeypairFile(path string) ([]*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	keys, err := ParseKeypairs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keys, nil
}

// ParseKeypairs parses the formats accepted by LoadKeypairFile.
func ParseKeypairs(data []byte) ([]*Keypair, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidSecretKey)
	}

	if trimmed[0] == '[' {
		return parseJSON(trimmed)
	}
	return parseBase58Lines(trimmed)
}

func parseJSON(data []byte) ([]*Keypair, error) {
	var single []int
	if err := json.Unmarshal(data, &single); err == nil {
		kp, err := fromInts(single)
		if err != nil {
			return nil, err
		}
		return []*Keypair{kp}, nil
	}

	var many [][]int
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("%w: unrecognized JSON keypair format", ErrInvalidSecretKey)
	}
	out := make([]*Keypair, 0, len(many))
	for i, raw := range many {
		kp, err := fromInts(raw)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out = append(out, kp)
	}
	return out, nil
}

func fromInts(raw []int) (*Keypair, error) {
	secret := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidSecretKey, i)
		}
		secret[i] = byte(v)
	}
	return FromSecretKey(secret)
}

func parseBase58Lines(data []byte) ([]*Keypair, error) {
	var out []*Keypair
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		secret, err := base58.Decode(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrInvalidSecretKey, err)
		}
		kp, err := FromSecretKey(secret)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, kp)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidSecretKey)
	}
	return out, nil
}
