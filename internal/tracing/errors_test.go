package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordOnSpan 在内存recorder上执行记录操作并返回结束后的span
func recordOnSpan(t *testing.T, record func(span trace.Span)) sdktrace.ReadOnlySpan {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	record(span)
	span.End()
	ended := recorder.Ended()
	require.Len(t, ended, 1)
	return ended[0]
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestRecordError_SetsTypeAndStatus(t *testing.T) {
	boom := errors.New("connection refused")
	got := recordOnSpan(t, func(span trace.Span) {
		RecordError(span, boom, ErrorTypeDB)
	})

	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "connection refused", got.Status().Description)

	errType, ok := attrValue(got.Attributes(), "error.type")
	require.True(t, ok)
	assert.Equal(t, "db", errType)
	require.Len(t, got.Events(), 1, "应只记录一个异常事件")
}

func TestRecordError_NilErrorNoop(t *testing.T) {
	got := recordOnSpan(t, func(span trace.Span) {
		RecordError(span, nil, ErrorTypeInternal)
	})

	assert.Equal(t, codes.Unset, got.Status().Code)
	assert.Empty(t, got.Events())
}

func TestRecordErrorWithInfo_AppendsAttributes(t *testing.T) {
	got := recordOnSpan(t, func(span trace.Span) {
		RecordErrorWithInfo(span, errors.New("boom"), ErrorTypeInternal,
			attribute.String("processing.stage", "parse"))
	})

	stage, ok := attrValue(got.Attributes(), "processing.stage")
	require.True(t, ok)
	assert.Equal(t, "parse", stage)
	assert.Equal(t, codes.Error, got.Status().Code)
}

func TestRecordHTTPError_Categories(t *testing.T) {
	tests := []struct {
		statusCode int
		category   string
	}{
		{404, "client_error"},
		{503, "server_error"},
		{302, "unknown"},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status_%d", tc.statusCode), func(t *testing.T) {
			got := recordOnSpan(t, func(span trace.Span) {
				RecordHTTPError(span, errors.New("request failed"), tc.statusCode)
			})

			category, ok := attrValue(got.Attributes(), "error.category")
			require.True(t, ok)
			assert.Equal(t, tc.category, category)

			errType, _ := attrValue(got.Attributes(), "error.type")
			assert.Equal(t, "http", errType)
			assert.Equal(t, codes.Error, got.Status().Code)
		})
	}
}

func TestRecordRabbitMQNack_DefaultReason(t *testing.T) {
	got := recordOnSpan(t, func(span trace.Span) {
		RecordRabbitMQNack(span, "sub-123", "")
	})

	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "message not acknowledged by broker", got.Status().Description)

	msgID, ok := attrValue(got.Attributes(), "messaging.message_id")
	require.True(t, ok)
	assert.Equal(t, "sub-123", msgID)
}

func TestRecordRabbitMQTimeout(t *testing.T) {
	got := recordOnSpan(t, func(span trace.Span) {
		RecordRabbitMQTimeout(span, "sub-123", "10s")
	})

	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "publish timeout after 10s", got.Status().Description)

	errKind, ok := attrValue(got.Attributes(), "messaging.error_type")
	require.True(t, ok)
	assert.Equal(t, "timeout", errKind)
}
