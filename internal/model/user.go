package model

// BaseAttributes lists the built-in user attributes that are coerced to
// strings when events are serialized.
var BaseAttributes = []string{
	"key", "secondary", "ip", "country", "email",
	"firstName", "lastName", "avatar", "name",
}

// User represents the subject of flag evaluations and analytics events.
// Built-in attributes other than the key are free-typed on input and are
// string-coerced at event formatting time.
type User struct {
	Key       string `json:"key"`
	Secondary any    `json:"secondary,omitempty"`
	IP        any    `json:"ip,omitempty"`
	Country   any    `json:"country,omitempty"`
	Email     any    `json:"email,omitempty"`
	FirstName any    `json:"firstName,omitempty"`
	LastName  any    `json:"lastName,omitempty"`
	Avatar    any    `json:"avatar,omitempty"`
	Name      any    `json:"name,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`

	Custom map[string]any `json:"custom,omitempty"`

	// PrivateAttributeNames marks attributes that must be redacted for this
	// user in addition to the globally configured ones.
	PrivateAttributeNames []string `json:"privateAttributeNames,omitempty"`
}

// Attribute looks up a user attribute by name, checking built-in attributes
// first and falling back to custom attributes. Returns nil when absent.
func (u *User) Attribute(name string) any {
	switch name {
	case "key":
		return u.Key
	case "secondary":
		return u.Secondary
	case "ip":
		return u.IP
	case "country":
		return u.Country
	case "email":
		return u.Email
	case "firstName":
		return u.FirstName
	case "lastName":
		return u.LastName
	case "avatar":
		return u.Avatar
	case "name":
		return u.Name
	case "anonymous":
		if u.Anonymous {
			return true
		}
		return nil
	}
	if u.Custom != nil {
		if v, ok := u.Custom[name]; ok {
			return v
		}
	}
	return nil
}

// ContextKind reports how the user should be labelled on alias and output
// events.
func (u *User) ContextKind() string {
	if u != nil && u.Anonymous {
		return "anonymousUser"
	}
	return "user"
}
