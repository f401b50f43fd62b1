package channel

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{}, nil
}

func TestSESSenderBuildsSimpleMessage(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSenderWithClient(client, "team@example.com")

	require.NoError(t, sender.Send(context.Background(), "lead@example.com", "Hello", "Body"))
	require.NotNil(t, client.in)
	assert.Equal(t, "team@example.com", *client.in.FromEmailAddress)
	assert.Equal(t, []string{"lead@example.com"}, client.in.Destination.ToAddresses)
	assert.Equal(t, "Hello", *client.in.Content.Simple.Subject.Data)
	assert.Equal(t, "Body", *client.in.Content.Simple.Body.Text.Data)
}

func TestSESSenderWrapsError(t *testing.T) {
	boom := errors.New("throttled")
	sender := NewSESSenderWithClient(&fakeSES{err: boom}, "team@example.com")
	err := sender.Send(context.Background(), "lead@example.com", "s", "b")
	assert.ErrorIs(t, err, boom)
}

func TestNewSESSenderRequiresFrom(t *testing.T) {
	_, err := NewSESSender(context.Background(), "eu-central-1", "")
	assert.Error(t, err)
}

func TestLogSenderHonoursCancellation(t *testing.T) {
	sender := NewLogSender(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sender.Send(ctx, "a@example.com", "s", "b"), context.Canceled)
	assert.NoError(t, sender.Send(context.Background(), "a@example.com", "s", "b"))
}

func TestLinkSessionCreator(t *testing.T) {
	c := &LinkSessionCreator{BaseURL: "https://meet.example.com/"}
	s, err := c.CreateSession(context.Background(), "Hot lead", 30)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	join, err := url.Parse(s.JoinURL)
	require.NoError(t, err)
	assert.Equal(t, "/r/"+s.ID, join.Path)
	assert.Equal(t, "Hot lead", join.Query().Get("topic"))
	assert.Empty(t, join.Query().Get("host_key"))

	host, err := url.Parse(s.HostURL)
	require.NoError(t, err)
	assert.NotEmpty(t, host.Query().Get("host_key"))

	other, err := c.CreateSession(context.Background(), "Hot lead", 30)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestLinkSessionCreatorRejectsBadInput(t *testing.T) {
	_, err := (&LinkSessionCreator{BaseURL: "https://meet.example.com"}).CreateSession(context.Background(), "x", 0)
	assert.Error(t, err)
	_, err = (&LinkSessionCreator{BaseURL: "not a url"}).CreateSession(context.Background(), "x", 30)
	assert.Error(t, err)
}
