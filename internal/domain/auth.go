package domain

type LoginURL struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

type AuthResult struct {
	Success bool  `json:"success"`
	User    *User `json:"user,omitempty"`
}
