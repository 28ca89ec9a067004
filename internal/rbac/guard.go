package rbac

// GuardDecision is the outcome of a route-guard check.
type GuardDecision struct {
	Allow    bool
	Redirect string
}

const (
	LoginPath  = "/login"
	PublicPath = "/"
)

// Landing returns the dashboard path a role is sent to after sign-in, or the
// public landing page for an unrecognized role.
func Landing(role Role) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleVolunteer:
		return "/volunteer"
	case RoleResponder:
		return "/responder"
	default:
		return PublicPath
	}
}

// Guard allows rendering only when the actor is authenticated and holds one
// of the required roles. Unauthenticated actors are sent to the login
// surface; authenticated but unauthorized actors are sent to their own
// landing surface. A missing or still-loading profile is treated as
// unauthorized, never as an error.
//
// Guard is the navigation contract for clients of this API: the server only
// reports each session's landing surface (see Landing and GET /api/session);
// route-level rendering decisions belong to the client, which mirrors this
// function.
func Guard(required []Role, authenticated bool, role Role) GuardDecision {
	if !authenticated {
		return GuardDecision{Redirect: LoginPath}
	}
	for _, allowed := range required {
		if role == allowed {
			return GuardDecision{Allow: true}
		}
	}
	return GuardDecision{Redirect: Landing(role)}
}
