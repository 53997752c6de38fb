package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"RentalInsight/src/processor"

	"github.com/jordan-wright/email"
)

// Sender 通过SMTP把清洗结果作为附件发出
type Sender struct {
	server   string
	username string
	password string
	to       []string
	subject  string
	send     func(e *email.Email, addr string, a smtp.Auth, t *tls.Config) error
}

func NewSender(server, username, password string, to []string, subject string) *Sender {
	return &Sender{
		server:   server,
		username: username,
		password: password,
		to:       to,
		subject:  subject,
		send: func(e *email.Email, addr string, a smtp.Auth, t *tls.Config) error {
			return e.SendWithTLS(addr, a, t)
		},
	}
}

// Notify 发送清洗结果，xlsx导出存在时一并附上
func (s *Sender) Notify(_ context.Context, res *processor.Result) error {
	if len(s.to) == 0 {
		return nil
	}

	e, err := s.BuildMessage(res)
	if err != nil {
		return err
	}

	// 确保服务器地址包含端口
	smtpAddr := s.server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host := strings.Split(smtpAddr, ":")[0]

	// 发送邮件（显式 TLS）
	if err := s.send(e, smtpAddr, smtp.PlainAuth("", s.username, s.password, host), &tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	return nil
}

// BuildMessage 构造邮件，附件为清洗后的csv
func (s *Sender) BuildMessage(res *processor.Result) (*email.Email, error) {
	e := email.NewEmail()
	e.From = fmt.Sprintf("RentalInsight <%s>", s.username)
	e.To = s.to
	e.Subject = s.subject

	r := res.Report
	e.Text = []byte(fmt.Sprintf(
		"清洗完成\n清洗前: %d 行 %d 列\n清洗后: %d 行 %d 列\n缺失超过80%%删除: %d 行\n地区/州为空删除: %d 行\n",
		r.Before.Rows, r.Before.Cols, r.After.Rows, r.After.Cols, r.RemovedByMissing(), r.RemovedByIdentity()))

	// 添加附件
	if _, err := e.AttachFile(res.Output); err != nil {
		return nil, fmt.Errorf("附件添加失败: %w", err)
	}
	if res.ExportXLSX != "" {
		if _, err := e.AttachFile(res.ExportXLSX); err != nil {
			return nil, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, nil
}
