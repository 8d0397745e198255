package forgeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		code string
	}{
		{"config", Config("bad input", "fix it"), KindConfig, CodeConfig},
		{"retryable", Retryable("timeout", nil), KindRetryable, CodeRetryable},
		{"internal", Internal("boom", nil), KindInternal, CodeInternal},
		{"critical", Critical("halt", nil), KindCritical, CodeCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.NotNil(t, tt.err.Context)
		})
	}
}

func TestRetryableDefaults(t *testing.T) {
	err := Retryable("network down", errors.New("dial tcp"))

	assert.True(t, err.Retryable())
	assert.Equal(t, DefaultMaxRetries, err.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, err.RetryDelay)
	assert.Equal(t, "dial tcp", errors.Unwrap(err).Error())
}

func TestErrorString(t *testing.T) {
	err := Config("invalid port", "use 1-65535").
		WithCode(CodeInvalidProxy).
		With("port", 0).
		With("host", "proxy.local")

	assert.Equal(t, "[BF_INVALID_PROXY] invalid port | Context: host=proxy.local, port=0", err.Error())

	withCause := Internal("load failed", errors.New("eof"))
	assert.Equal(t, "[BF_INTERNAL_ERROR] load failed | Cause: eof", withCause.Error())
}

func TestClassificationThroughWrapping(t *testing.T) {
	base := Retryable("download failed", nil)
	wrapped := fmt.Errorf("resolving chrome: %w", base)

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, Is(wrapped, KindConfig))
	assert.True(t, HasCode(wrapped, CodeRetryable))

	cfg := fmt.Errorf("outer: %w", Config("no usable endpoints", "add proxies"))
	assert.Equal(t, "add proxies", Suggestion(cfg))
	assert.Empty(t, Suggestion(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	plain := Wrap(errors.New("disk full"), "saving metadata")
	require.True(t, Is(plain, KindInternal))
	fe, _ := As(plain)
	assert.Equal(t, "saving metadata", fe.Message)

	cfg := Wrap(Config("bad browser", ""), "loading config")
	assert.True(t, Is(cfg, KindConfig))
	assert.Contains(t, cfg.Error(), "loading config: ")
}

func TestChain(t *testing.T) {
	err := fmt.Errorf("top: %w", Internal("middle", errors.New("root")))

	chain := Chain(err)
	require.Len(t, chain, 3)
	assert.Equal(t, "middle", chain[1])
	assert.Equal(t, "root", chain[2])
}

func TestFields(t *testing.T) {
	err := Retryable("slow", errors.New("timeout")).With("url", "https://example.com")

	fields := err.Fields()
	assert.Equal(t, "retryable", fields["error_type"])
	assert.Equal(t, "timeout", fields["cause"])
	assert.Equal(t, 3, fields["max_retries"])
	assert.Equal(t, "1s", fields["retry_delay"])
	assert.NotContains(t, fields, "suggestion")
}
