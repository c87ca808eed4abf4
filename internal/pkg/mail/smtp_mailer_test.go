package mail

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_Send(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m := &SMTPMailer{Host: "smtp.local", Port: "2525", Sender: "shop@example.com",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, msg
			assert.Nil(t, a)
			assert.Equal(t, "shop@example.com", from)
			return nil
		}}

	require.NoError(t, m.Send([]string{"a@example.com", "b@example.com"}, "Hello", "<p>hi</p>"))
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>")
}

func TestSMTPMailer_Failures(t *testing.T) {
	assert.Error(t, (&SMTPMailer{}).Send([]string{"a@example.com"}, "s", "b"))
	assert.NoError(t, (&SMTPMailer{}).Send(nil, "s", "b"))

	m := &SMTPMailer{Host: "h", Port: "25", send: func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("refused")
	}}
	assert.EqualError(t, m.Send([]string{"a@example.com"}, "s", "b"), "refused")
}
