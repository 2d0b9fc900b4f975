package entry

// Owner identifies who a row belongs to. The zero value is the absent owner
// used by legacy anonymous rows; it never matches a row owned by a user.
type Owner struct {
	id string
}

// Anonymous is the absent owner.
func Anonymous() Owner { return Owner{} }

// UserOwner returns the owner for an authenticated user id. An empty id
// yields the absent owner.
func UserOwner(id string) Owner { return Owner{id: id} }

// ID returns the user id and whether one is present.
func (o Owner) ID() (string, bool) { return o.id, o.id != "" }

func (o Owner) IsAnonymous() bool { return o.id == "" }

// Key is a non-null representation usable in unique indexes and partition
// keys. Anonymous rows share the empty key.
func (o Owner) Key() string { return o.id }

// Ptr returns nil for the absent owner, for nullable columns.
func (o Owner) Ptr() *string {
	if o.id == "" {
		return nil
	}
	id := o.id
	return &id
}

func (o Owner) String() string {
	if o.id == "" {
		return "anonymous"
	}
	return o.id
}

// OwnerFromPtr is the inverse of Ptr.
func OwnerFromPtr(id *string) Owner {
	if id == nil {
		return Anonymous()
	}
	return UserOwner(*id)
}
