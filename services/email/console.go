package emailsvc

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
)

var (
	sentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

// SentMessages returns a copy of the messages sent by console services so far.
func SentMessages() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	msgs := make([]core.EmailMessage, len(sentMessages))
	copy(msgs, sentMessages)
	return msgs
}

func ResetSentMessages() {
	mu.Lock()
	defer mu.Unlock()
	sentMessages = sentMessages[:0]
}

// consoleService prints emails as MIME messages instead of sending them.
type consoleService struct {
	from       mail.Address
	subjPrefix string
	baseURL    string
	out        io.Writer // nil disables output
	logger     core.Logger
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
		baseURL:    conf.FrontendBaseURL,
		out:        os.Stdout,
		logger:     logger,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(svc.baseURL); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return
	}
	if !(msg.HasRecipients() && msg.HasContent()) {
		return
	}
	if err := svc.send(*msg); err != nil {
		svc.logger.Error(fmt.Sprintf("printing email: %v", err), err)
		return
	}
	mu.Lock()
	sentMessages = append(sentMessages, *msg)
	mu.Unlock()
}

func (svc consoleService) send(msg core.EmailMessage) error {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return errors.Wrap(err, "closing multipart writer")
	}

	if svc.out != nil {
		_, err = fmt.Fprintln(svc.out, body.String())
	}
	return err
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock sends synchronously and prints nothing.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleServiceMock{
		consoleService: consoleService{
			from:       conf.DefaultFromEmail,
			subjPrefix: "[" + conf.AppName + "] ",
			baseURL:    conf.FrontendBaseURL,
			logger:     logger,
		},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}
