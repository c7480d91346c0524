package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
)

func testConfig() *core.Config {
	conf := &core.Config{AppName: "Ratiba"}
	conf.SetDefaultFromEmail("noreply@ratiba.test")
	return conf
}

func Test_consoleService_compose(t *testing.T) {
	svc := NewConsoleServiceMock(testConfig(), nil)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Sam", Address: "sam@ratiba.test"}},
		Subject:     "Substitution confirmed: 7A",
		TextContent: "Hello Sam",
		HTMLContent: "<p>Hello Sam</p>",
	}
	body, err := svc.compose(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Ratiba] Substitution confirmed: 7A\r\n")
	assert.Contains(t, body, `To: "Sam" <sam@ratiba.test>`)
	assert.Contains(t, body, "noreply@ratiba.test")
	assert.Contains(t, body, "Content-Type: multipart/alternative")
	assert.Contains(t, body, "<p>Hello Sam</p>")

	require.NoError(t, msg.Attach(strings.NewReader("BEGIN:VCALENDAR"), "substitution.ics", "text/calendar"))
	body, err = svc.compose(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Content-Type: multipart/mixed")
	assert.Contains(t, body, "attachment; filename=substitution.ics")
	assert.Contains(t, body, "QkVHSU46VkNBTEVOREFS") // base64 of the payload
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(testConfig(), nil)

	svc.SendMessages(
		&core.EmailMessage{Subject: "no recipients", BodyStr: "lol"},
		&core.EmailMessage{To: []mail.Address{{Address: "tom@ratiba.test"}}, Subject: "no content"},
		&core.EmailMessage{To: []mail.Address{{Address: "sam@ratiba.test"}}, Subject: "hi", BodyStr: "hello"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Subject)
	assert.Equal(t, "hello", sent[0].TextContent)
}
