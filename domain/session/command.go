package session

// Command is a client intent entering the synchronizer.
type Command interface {
	SessionID() ID
}

type JoinCommand struct {
	Session  ID
	UserName string
}

func (c JoinCommand) SessionID() ID { return c.Session }

type UpdateFileCommand struct {
	Session  ID
	Filename string
	Content  string
}

func (c UpdateFileCommand) SessionID() ID { return c.Session }

type CreateFileCommand struct {
	Session  ID
	Filename string
	Content  string
}

func (c CreateFileCommand) SessionID() ID { return c.Session }

type DeleteFileCommand struct {
	Session  ID
	Filename string
}

func (c DeleteFileCommand) SessionID() ID { return c.Session }

type ChatCommand struct {
	Session  ID
	UserName string
	Text     string
}

func (c ChatCommand) SessionID() ID { return c.Session }
