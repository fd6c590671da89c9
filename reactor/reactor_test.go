package reactor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	parseErr     error
	parsedIDs    []int64
	statusCalls  []string
	statusTarget int64
}

func (f *fakeIngestor) ParseOneSourceByID(_ context.Context, sourceID int64) error {
	f.parsedIDs = append(f.parsedIDs, sourceID)
	return f.parseErr
}

func (f *fakeIngestor) SetSourceStatus(_ context.Context, sourceID int64, status string) (bool, error) {
	f.statusTarget = sourceID
	f.statusCalls = append(f.statusCalls, status)
	return true, nil
}

type fakePublisher struct {
	published []Status
}

func (f *fakePublisher) Publish(_ context.Context, v interface{}) error {
	f.published = append(f.published, v.(Status))
	return nil
}

// A well-formed command whose parse succeeds publishes active.
func TestHandleSuccessPublishesActive(t *testing.T) {
	ing := &fakeIngestor{}
	pub := &fakePublisher{}
	r := New(ing, pub)

	err := r.Handle(context.Background(), []byte(`{"source_id":10,"user_id":42}`))
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, Status{SourceID: 10, UserID: 42, Status: "active"}, pub.published[0])
	require.Len(t, ing.statusCalls, 1)
	assert.Equal(t, "active", ing.statusCalls[0])
}

// A well-formed command whose feed fetch fails publishes error with the
// fetch error's text.
func TestHandleFailurePublishesErrorWithMessage(t *testing.T) {
	ing := &fakeIngestor{parseErr: errors.New("HTTP 500")}
	pub := &fakePublisher{}
	r := New(ing, pub)

	err := r.Handle(context.Background(), []byte(`{"source_id":10,"user_id":42}`))
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "error", pub.published[0].Status)
	assert.Equal(t, "HTTP 500", pub.published[0].Error)
	assert.Equal(t, "error", ing.statusCalls[0])
}

func TestHandleInvalidFieldsDoesNotTouchSource(t *testing.T) {
	ing := &fakeIngestor{}
	pub := &fakePublisher{}
	r := New(ing, pub)

	err := r.Handle(context.Background(), []byte(`{"source_id":-1,"user_id":42}`))
	require.NoError(t, err)

	assert.Empty(t, ing.parsedIDs)
	assert.Empty(t, ing.statusCalls)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "bad_payload_fields", pub.published[0].Error)
}

func TestHandleMalformedJSONPublishesBadPayload(t *testing.T) {
	ing := &fakeIngestor{}
	pub := &fakePublisher{}
	r := New(ing, pub)

	err := r.Handle(context.Background(), []byte(`not json`))
	require.NoError(t, err)

	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(-1), pub.published[0].SourceID)
	assert.Equal(t, "bad_payload", pub.published[0].Error)
}
