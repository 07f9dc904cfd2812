package email

// Client exports the internal client interface for testing.
type Client = client

// SetClient replaces the Mailgun client for testing purposes.
func (s *Sender) SetClient(c Client) {
	s.client = c
}
