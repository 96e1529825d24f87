package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

// BlobConfig configures a blob sink
type BlobConfig struct {
	RunnerID   string
	Attributes []string
	// FlushEvery is the number of records per uploaded object
	FlushEvery int
}

// Blob buffers records as JSON lines and uploads them in batches to
// records/<runnerID>/<uuid>.jsonl
type Blob struct {
	client storage.BlobStorageClient
	cfg    BlobConfig
	logger *zap.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
	objects []string
}

// NewBlob creates a blob sink uploading through client
func NewBlob(client storage.BlobStorageClient, cfg BlobConfig, logger *zap.Logger) (*Blob, error) {
	if client == nil {
		return nil, fmt.Errorf("blob client is required: %w", sdkerrors.ErrInvalidConfig)
	}
	if cfg.RunnerID == "" {
		cfg.RunnerID = uuid.NewString()
	}
	if cfg.FlushEvery <= 0 {
		return nil, fmt.Errorf("flush size must be positive: %w", sdkerrors.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Blob{client: client, cfg: cfg, logger: logger}, nil
}

// Emit appends rec to the current batch and uploads the batch once full
func (b *Blob) Emit(ctx context.Context, rec record.Positional) error {
	line, err := Encode(b.cfg.Attributes, rec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(line)
	b.buf.WriteByte('\n')
	b.pending++

	if b.pending >= b.cfg.FlushEvery {
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush uploads the buffered records, if any
func (b *Blob) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Blob) flushLocked(ctx context.Context) error {
	if b.pending == 0 {
		return nil
	}

	path := fmt.Sprintf("records/%s/%s.jsonl", b.cfg.RunnerID, uuid.NewString())
	metadata := map[string]string{
		"runner_id": b.cfg.RunnerID,
		"records":   strconv.Itoa(b.pending),
	}

	data := append([]byte(nil), b.buf.Bytes()...)
	if _, err := b.client.Upload(ctx, path, data, metadata); err != nil {
		return sdkerrors.NewError(sdkerrors.CodeSink, "upload "+path, err)
	}

	b.logger.Debug("Uploaded record batch",
		zap.String("blob_path", path),
		zap.Int("records", b.pending))

	b.objects = append(b.objects, path)
	b.buf.Reset()
	b.pending = 0
	return nil
}

// Objects returns the paths uploaded so far
func (b *Blob) Objects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.objects...)
}

// Close uploads the remaining records
func (b *Blob) Close(ctx context.Context) error {
	return b.Flush(ctx)
}

// ReadObject downloads one uploaded batch and decodes its records. ref is an
// object path as returned by Objects or the URL returned by the client.
func ReadObject(ctx context.Context, client storage.BlobStorageClient, ref string) ([]Envelope, error) {
	data, err := client.Download(ctx, ref)
	if err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeSink, "download "+ref, err)
	}

	var out []Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode %s: %w", ref, err)
		}
		out = append(out, env)
	}
}
