package listener

// Role is the side of a protocol exchange a listener processes. Inbound
// notifications report the remote party's role; a listener only handles
// notifications whose remote role is the complement of its own.
type Role string

const (
	RoleInviter   Role = "inviter"
	RoleInvitee   Role = "invitee"
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
	RoleIssuer    Role = "issuer"
	RoleHolder    Role = "holder"
	RoleProver    Role = "prover"
	RoleVerifier  Role = "verifier"
)

var complements = map[Role]Role{
	RoleInviter:   RoleInvitee,
	RoleInvitee:   RoleInviter,
	RoleRequester: RoleResponder,
	RoleResponder: RoleRequester,
	RoleIssuer:    RoleHolder,
	RoleHolder:    RoleIssuer,
	RoleProver:    RoleVerifier,
	RoleVerifier:  RoleProver,
}

// Complement returns the opposite side of the exchange, or the empty role
// when the receiver is not a known protocol role.
func (r Role) Complement() Role {
	return complements[r]
}

// Accepts reports whether a notification declaring theirRole for the remote
// party belongs to this listener. An empty declared role is accepted: some
// agent builds omit it, and dropping those notifications would stall
// exchanges.
func (r Role) Accepts(theirRole string) bool {
	if theirRole == "" {
		return true
	}

	return Role(theirRole) == r.Complement()
}
