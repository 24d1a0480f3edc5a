package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPStrategy writes the event as a JSON document into a remote directory.
// The filename is templated from the event; re-publishing the same delivery
// overwrites the same file, which keeps retries idempotent.
type SFTPStrategy struct{}

func NewSFTPStrategy() *SFTPStrategy { return &SFTPStrategy{} }

func (s *SFTPStrategy) Type() string  { return "sftp" }
func (s *SFTPStrategy) Label() string { return "SFTP file drop" }

func (s *SFTPStrategy) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "host", Type: "text", Label: "Host", Required: true},
		{Name: "port", Type: "text", Label: "Port", Default: "22"},
		{Name: "username", Type: "text", Label: "Username", Required: true},
		{Name: "password", Type: "text", Label: "Password (direct, avoid in production)"},
		{Name: "passwordRef", Type: "text", Label: "Password reference (env:... or file:...)", Placeholder: "env:OUTBOX_SFTP_PASSWORD"},
		{Name: "privateKey", Type: "text", Label: "Private key (PEM or path)"},
		{Name: "privateKeyRef", Type: "text", Label: "Private key reference (env:... or file:...)", Placeholder: "file:/run/secrets/sftp_id_rsa"},
		{Name: "passphrase", Type: "text", Label: "Private key passphrase (optional)"},
		{Name: "remoteDir", Type: "text", Label: "Remote directory", Required: true, Placeholder: "/incoming/outbox"},
		{Name: "fileNamePattern", Type: "text", Label: "Filename pattern", Default: "{eventId}.json", Placeholder: "{eventName}-{eventId}.json"},
	}
}

func (s *SFTPStrategy) ValidateConfig(config map[string]any) error {
	if err := requireFields(s.Type(), config, "host", "username", "remoteDir"); err != nil {
		return err
	}

	if stringValue(config, "password") == "" && stringValue(config, "privateKey") == "" {
		return fmt.Errorf("sftp destination requires either \"password/passwordRef\" or \"privateKey/privateKeyRef\" config")
	}

	return nil
}

func (s *SFTPStrategy) Publish(ctx context.Context, event model.DomainEvent, dctx Context, config map[string]any) error {
	if err := s.ValidateConfig(config); err != nil {
		return err
	}

	auth, err := buildAuthMethods(config)
	if err != nil {
		return err
	}

	port := stringValue(config, "port")
	if port == "" {
		port = "22"
	}
	addr := net.JoinHostPort(stringValue(config, "host"), port)

	sshCfg := &ssh.ClientConfig{
		User:            stringValue(config, "username"),
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("sftp connect %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("sftp session: %w", err)
	}
	defer client.Close()

	doc, err := json.MarshalIndent(map[string]any{
		"deliveryId":     dctx.DeliveryID,
		"destinationId":  dctx.DestinationID,
		"destinationKey": dctx.DestinationKey,
		"event":          event,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	name := ResolveFileName(stringValue(config, "fileNamePattern"), event)
	remotePath := path.Join(stringValue(config, "remoteDir"), name)

	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("could not write payload to remote file %q: %w", remotePath, err)
	}

	if _, err := f.Write(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not write payload to remote file %q: %w", remotePath, err)
	}

	return f.Close()
}

// ResolveFileName expands {eventId}, {eventName} and {aggregateId} in the
// pattern. Dots in the event name are flattened to underscores.
func ResolveFileName(pattern string, event model.DomainEvent) string {
	if pattern == "" {
		pattern = "{eventId}.json"
	}

	r := strings.NewReplacer(
		"{eventId}", event.ID,
		"{eventName}", strings.ReplaceAll(event.EventName, ".", "_"),
		"{aggregateId}", event.AggregateID,
	)

	return strings.TrimPrefix(r.Replace(pattern), "/")
}

func buildAuthMethods(config map[string]any) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if pw := stringValue(config, "password"); pw != "" {
		methods = append(methods, ssh.Password(pw))
	}

	if key := stringValue(config, "privateKey"); key != "" {
		pem := []byte(key)
		// a path rather than inline PEM content
		if !strings.Contains(key, "-----BEGIN") {
			data, err := os.ReadFile(key)
			if err != nil {
				return nil, fmt.Errorf("read private key %q: %w", key, err)
			}
			pem = data
		}

		var signer ssh.Signer
		var err error
		if pass := stringValue(config, "passphrase"); pass != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(pass))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("sftp destination has no usable credentials")
	}

	return methods, nil
}
