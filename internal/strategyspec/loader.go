package strategyspec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML book file and returns the Book with its raw bytes
func Load(path string) (*Book, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	book, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return book, data, nil
}

// Parse decodes and validates a YAML book
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Parse(data []byte) (*Book, error) {
	var book Book
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&book); err != nil {
		return nil, err
	}

	if err := Validate(&book); err != nil {
		return nil, err
	}
	return &book, nil
}

// Hash generates SHA256 hash from Book (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(book *Book) (string, error) {
	jsonBytes, err := json.Marshal(book)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewBuildSnapshot records which book was built in which session
func NewBuildSnapshot(book *Book, yamlData []byte, sessionID string) (*BuildSnapshot, error) {
	hash, err := Hash(book)
	if err != nil {
		return nil, err
	}

	return &BuildSnapshot{
		BookHash:  hash,
		BookYAML:  string(yamlData),
		BookID:    book.Meta.BookID,
		Version:   book.Meta.Version,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}, nil
}
