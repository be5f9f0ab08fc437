package router

// Paths the guard redirects to.
const (
	LoginPath  = "/login"
	TopicsPath = "/topics"
)

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

func allow() Decision             { return Decision{Allowed: true} }
func redirect(to string) Decision { return Decision{RedirectTo: to} }

// Guard decides whether a navigation to target proceeds:
//   - a protected route without authentication redirects to /login
//   - the login and register pages redirect an authenticated session to
//     /topics
//   - everything else passes through
//
// A nil target (unresolved path) passes through; not-found handling is the
// shell's concern.
func Guard(target *Route, authenticated bool) Decision {
	if target == nil {
		return allow()
	}
	if target.RequiresAuth && !authenticated {
		return redirect(LoginPath)
	}
	if (target.Name == NameLogin || target.Name == NameRegister) && authenticated {
		return redirect(TopicsPath)
	}
	return allow()
}

// Decide resolves path against the table and guards the result.
func (t *Table) Decide(path string, authenticated bool) Decision {
	target, _ := t.Match(path)
	return Guard(target, authenticated)
}
