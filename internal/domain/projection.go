package domain

// Fields names the message attributes to retain in a projected result. The
// message id is always kept so callers can correlate projected records.
type Fields []string

// Has reports whether name is part of the projection.
func (f Fields) Has(name string) bool {
	for _, n := range f {
		if n == name {
			return true
		}
	}
	return false
}

// Project returns a copy of m carrying only the projected attributes.
func (f Fields) Project(m Message) Message {
	out := Message{ID: m.ID}
	for _, name := range f {
		switch name {
		case "temp_id":
			out.TempID = m.TempID
		case "channel_id":
			out.ChannelID = m.ChannelID
		case "user_id":
			out.UserID = m.UserID
		case "type":
			out.Type = m.Type
		case "text":
			out.Text = m.Text
		case "props":
			out.Props = m.Props
		case "created_at":
			out.CreatedAt = m.CreatedAt
		case "updated_at":
			out.UpdatedAt = m.UpdatedAt
		case "deleted_at":
			out.DeletedAt = m.DeletedAt
		}
	}
	return out
}
