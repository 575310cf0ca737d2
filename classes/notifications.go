package cls

// attributes for sending notifications
type NotifAttr struct {
	Name  string
	Value string
}
