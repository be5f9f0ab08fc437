// Package router holds the application's route table and the navigation
// guard that decides, per target route, whether navigation proceeds or is
// redirected based on the session's authentication state.
package router

import "strings"

// Route names referenced by the guard.
const (
	NameHome             = "Home"
	NameLogin            = "Login"
	NameRegister         = "Register"
	NameAuthCallback     = "AuthCallback"
	NameAuthSuccess      = "AuthSuccess"
	NameTopics           = "Topics"
	NameNewTopic         = "NewTopic"
	NameTopicDetail      = "TopicDetail"
	NameCharacters       = "Characters"
	NameNewCharacter     = "NewCharacter"
	NameCharacterDetail  = "CharacterDetail"
	NameDiscussions      = "Discussions"
	NameNewDiscussion    = "NewDiscussion"
	NameDiscussionDetail = "DiscussionDetail"
	NameDiscussionReport = "DiscussionReport"
	NameSettings         = "Settings"
)

// Route is one navigable destination.  Path segments beginning with ":" are
// parameters and match any single non-empty segment.
type Route struct {
	Path         string
	Name         string
	RequiresAuth bool
}

// AppRoutes returns the application's route table.  Order matters: static
// segments are listed before parameter segments so that /topics/new is
// NewTopic, not TopicDetail.
func AppRoutes() []Route {
	return []Route{
		{Path: "/", Name: NameHome},
		{Path: "/login", Name: NameLogin},
		{Path: "/register", Name: NameRegister},
		{Path: "/auth/callback", Name: NameAuthCallback},
		{Path: "/auth/success", Name: NameAuthSuccess},
		{Path: "/topics", Name: NameTopics, RequiresAuth: true},
		{Path: "/topics/new", Name: NameNewTopic, RequiresAuth: true},
		{Path: "/topics/:id", Name: NameTopicDetail, RequiresAuth: true},
		{Path: "/characters", Name: NameCharacters, RequiresAuth: true},
		{Path: "/characters/new", Name: NameNewCharacter, RequiresAuth: true},
		{Path: "/characters/:id", Name: NameCharacterDetail, RequiresAuth: true},
		{Path: "/discussions", Name: NameDiscussions, RequiresAuth: true},
		{Path: "/discussions/new", Name: NameNewDiscussion, RequiresAuth: true},
		{Path: "/discussions/:id", Name: NameDiscussionDetail, RequiresAuth: true},
		{Path: "/discussions/:id/report", Name: NameDiscussionReport, RequiresAuth: true},
		{Path: "/settings", Name: NameSettings, RequiresAuth: true},
	}
}

// Table resolves paths to routes.
type Table struct {
	routes []Route
}

// NewTable creates a table over routes; with none given it uses AppRoutes.
func NewTable(routes ...Route) *Table {
	if len(routes) == 0 {
		routes = AppRoutes()
	}
	return &Table{routes: routes}
}

// Match resolves path to its route.  The first route whose pattern matches
// wins.
func (t *Table) Match(path string) (*Route, bool) {
	segs := splitPath(path)
	for i := range t.routes {
		if matchSegments(splitPath(t.routes[i].Path), segs) {
			return &t.routes[i], true
		}
	}
	return nil, false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return true
}
