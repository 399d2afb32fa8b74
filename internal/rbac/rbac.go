package rbac

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleWorker   Role = "worker"
	RoleApprover Role = "approver"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionSubmit    Action = "submit"
	ActionApprove   Action = "approve"
	ActionEditGraph Action = "edit-graph"
	ActionPublish   Action = "publish"
	ActionAdmin     Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionSubmit || action == ActionApprove ||
			action == ActionEditGraph || action == ActionPublish
	case RoleApprover:
		return action == ActionRead || action == ActionApprove
	case RoleWorker:
		return action == ActionRead || action == ActionSubmit
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleWorker, RoleApprover, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
