// Package snapshot пишет дамп оттранслированных записей миграции:
// NDJSON, сжатый zstd. Дамп - это предпросмотр того, что будет
// записано в цель; особенно полезен в dry-run режиме.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ruslano69/refsync/pkg/core/record"
)

// Writer пишет записи в локальный файл *.ndjson.zst.
// Не потокобезопасен: мигратор пишет сущности последовательно.
type Writer struct {
	file    *os.File
	zw      *zstd.Encoder
	enc     *json.Encoder
	written int64
	dest    string
}

// line - одна строка дампа
type line struct {
	Entity string                  `json:"entity"`
	Key    string                  `json:"key"`
	Record map[string]record.Value `json:"fields"`
}

// NewWriter создает дамп по назначению из плана.
// Назначение s3://bucket/key пишется во временный файл и выгружается
// в S3 при Close.
func NewWriter(destination string) (*Writer, error) {
	if destination == "" {
		return nil, fmt.Errorf("snapshot destination is empty")
	}

	path := destination
	if IsS3(destination) {
		tmp, err := os.CreateTemp("", "refsync-snapshot-*.ndjson.zst")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp snapshot file: %w", err)
		}
		return newWriter(tmp, destination)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	return newWriter(file, destination)
}

func newWriter(file *os.File, destination string) (*Writer, error) {
	zw, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &Writer{
		file: file,
		zw:   zw,
		enc:  json.NewEncoder(zw),
		dest: destination,
	}, nil
}

// IsS3 проверяет является ли назначение адресом S3
func IsS3(destination string) bool {
	return strings.HasPrefix(destination, "s3://")
}

// WriteRecords дописывает записи одной сущности в дамп.
// Реализует интерфейс migrate.SnapshotWriter.
func (w *Writer) WriteRecords(entity string, records []*record.Record) error {
	for _, rec := range records {
		l := line{
			Entity: entity,
			Key:    rec.Key.String(),
			Record: rec.Fields,
		}
		if err := w.enc.Encode(l); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
		w.written++
	}
	return nil
}

// Written возвращает количество записанных строк
func (w *Writer) Written() int64 {
	return w.written
}

// Close досжимает и закрывает дамп. Для s3:// назначения выгружает
// файл в S3 и удаляет временную копию.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush zstd stream: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if !IsS3(w.dest) {
		return nil
	}
	defer os.Remove(w.file.Name())
	if err := uploadS3(w.file.Name(), w.dest); err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}
