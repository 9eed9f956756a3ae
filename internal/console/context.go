package console

// Permission names an action a console operator may be granted.
type Permission string

const (
	PermRunControl    Permission = "run:control"
	PermTaskControl   Permission = "task:control"
	PermSettingsWrite Permission = "settings:write"
)

// Context identifies who operates the console and what they may change. It
// is built once at startup and passed to the server explicitly.
type Context struct {
	Operator    string
	Environment string
	granted     map[Permission]bool
}

// NewContext grants every permission unless readOnly is set.
func NewContext(operator, environment string, readOnly bool) Context {
	ctx := Context{Operator: operator, Environment: environment, granted: map[Permission]bool{}}
	if !readOnly {
		for _, p := range []Permission{PermRunControl, PermTaskControl, PermSettingsWrite} {
			ctx.granted[p] = true
		}
	}
	return ctx
}

// Allows reports whether p was granted.
func (c Context) Allows(p Permission) bool {
	return c.granted[p]
}

// Permissions lists granted permissions in a stable order.
func (c Context) Permissions() []Permission {
	out := make([]Permission, 0, len(c.granted))
	for _, p := range []Permission{PermRunControl, PermTaskControl, PermSettingsWrite} {
		if c.granted[p] {
			out = append(out, p)
		}
	}
	return out
}
