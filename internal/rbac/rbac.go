package rbac

type Role string
type Target string
type Status string
type Category string

const (
	RoleAdmin     Role = "admin"
	RoleVolunteer Role = "volunteer"
	RoleResponder Role = "responder"
)

const (
	TargetUnassigned Target = "unassigned"
	TargetVolunteer  Target = "volunteer"
	TargetResponder  Target = "responder"
)

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusDispatched Status = "dispatched"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
)

var Categories = []Category{
	"flood", "fire", "earthquake", "hurricane", "tsunami",
	"landslide", "chemical", "biological", "nuclear", "other",
}

// Normalize maps an unrecognized role string to the empty role, which holds
// no privileges anywhere in this package.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleVolunteer, RoleResponder:
		return Role(role)
	default:
		return ""
	}
}

func ValidTarget(target Target) bool {
	switch target {
	case TargetUnassigned, TargetVolunteer, TargetResponder:
		return true
	default:
		return false
	}
}

func ValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusAssigned, StatusDispatched, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

func ValidCategory(category Category) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Visible decides whether an actor may see a report. Admins see everything.
// Volunteers see volunteer-pool reports that are unclaimed or claimed by
// them. Responder-unit members see every responder-unit report; there is no
// per-member narrowing for the unit.
func Visible(role Role, userID string, assignedTo Target, assignedUserID string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleVolunteer:
		return assignedTo == TargetVolunteer && (assignedUserID == "" || assignedUserID == userID)
	case RoleResponder:
		return assignedTo == TargetResponder
	default:
		return false
	}
}

func CanAssign(role Role) bool {
	return role == RoleAdmin
}

// CanSetStatus allows administrators always, and assignees through the same
// visibility rule that scopes their dashboards.
func CanSetStatus(role Role, userID string, assignedTo Target, assignedUserID string) bool {
	if role == RoleAdmin {
		return true
	}
	return Visible(role, userID, assignedTo, assignedUserID)
}

// CanAnnotate gates the note composer and response-image uploader: any
// authenticated actor with visibility into the report.
func CanAnnotate(role Role, userID string, assignedTo Target, assignedUserID string) bool {
	return Visible(role, userID, assignedTo, assignedUserID)
}
