package output

import (
	"strconv"

	"github.com/marmos91/smbconn/pkg/smbconn"
)

// RecordTable renders a manager snapshot. Shares follow their session
// and are indented under it.
type RecordTable []smbconn.Record

// Headers implements TableRenderer.
func (RecordTable) Headers() []string {
	return []string{"ID", "Parent", "Object", "Uses", "Owner", "Group", "Mode", "State", "Gen", "Detail"}
}

// Rows implements TableRenderer.
func (t RecordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		object, detail := "session "+r.Server, principal(r.Domain, r.User)
		parent := "-"
		if r.Level == "share" {
			object = "  share " + r.Name
			detail = r.Type + " tid=0x" + strconv.FormatUint(uint64(r.TreeID), 16)
			if !r.Valid {
				detail += " stale"
			}
			parent = strconv.FormatUint(r.ParentID, 10)
		}
		rows = append(rows, []string{
			strconv.FormatUint(r.ID, 10),
			parent,
			object,
			strconv.Itoa(r.UseCount),
			ident(r.Owner),
			ident(r.Group),
			r.Mode,
			r.State,
			strconv.FormatUint(uint64(r.Generation), 10),
			detail,
		})
	}
	return rows
}

// Payload implements Payloader.
func (t RecordTable) Payload() any {
	return []smbconn.Record(t)
}

func ident(id uint32) string {
	if id == smbconn.AnyOwner {
		return "*"
	}
	return strconv.FormatUint(uint64(id), 10)
}

func principal(domain, user string) string {
	if domain == "" {
		return user
	}
	return domain + `\` + user
}

// EmptyMessage implements Emptier.
func (RecordTable) EmptyMessage() string {
	return "No sessions."
}
