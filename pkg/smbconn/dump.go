package smbconn

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/marmos91/smbconn/pkg/conn"
)

// Record is one line of the administrative listing. UseCount excludes
// the reference the listing itself held while reading.
type Record struct {
	Level      string `json:"level"`
	ID         uint64 `json:"id"`
	ParentID   uint64 `json:"parent_id"`
	UseCount   int    `json:"usecount"`
	Flags      uint32 `json:"flags"`
	Owner      uint32 `json:"owner"`
	Group      uint32 `json:"group"`
	Mode       string `json:"mode"`
	State      string `json:"state"`
	Generation uint32 `json:"generation"`

	// Session fields.
	Server    string `json:"server,omitempty"`
	LocalAddr string `json:"local_addr,omitempty"`
	User      string `json:"user,omitempty"`
	Domain    string `json:"domain,omitempty"`

	// Share fields.
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	TreeID uint32 `json:"tree_id,omitempty"`
	Valid  bool   `json:"valid,omitempty"`
}

// String renders the record on one line. Shares are indented under
// their session.
func (r Record) String() string {
	var b strings.Builder
	if r.Level == conn.LevelShare.String() {
		b.WriteString("  ")
	}
	fmt.Fprintf(&b, "%s id=%d parent=%d uses=%d flags=%#x owner=%d group=%d mode=%s state=%s gen=%d",
		r.Level, r.ID, r.ParentID, r.UseCount, r.Flags, r.Owner, r.Group, r.Mode, r.State, r.Generation)
	switch r.Level {
	case conn.LevelSession.String():
		fmt.Fprintf(&b, " server=%s local=%s user=%s", r.Server, r.LocalAddr, principal(r.Domain, r.User))
	case conn.LevelShare.String():
		fmt.Fprintf(&b, " name=%s type=%s tid=%#x valid=%t", r.Name, r.Type, r.TreeID, r.Valid)
	}
	return b.String()
}

func principal(domain, user string) string {
	if domain == "" {
		return user
	}
	return domain + `\` + user
}

// Snapshot lists every live session followed by its shares. Objects that
// are mid-teardown are skipped. The listing is consistent per session,
// not across the whole manager.
func (m *Manager) Snapshot(ctx context.Context) ([]Record, error) {
	sessions, err := m.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	defer releaseSessions(sessions)

	records := make([]Record, 0, len(sessions))
	for _, s := range sessions {
		if err := s.Lock(ctx, conn.LockShared|conn.LockIgnoreGone); err != nil {
			return nil, err
		}
		rec := s.recordLocked()
		kids := s.RefChildrenLocked()
		s.Unlock(conn.LockShared)

		records = append(records, rec)
		for _, c := range kids {
			records = append(records, c.Impl().(*Share).record())
		}
		conn.ReleAll(kids)
	}
	return records, nil
}

func (s *Session) recordLocked() Record {
	return Record{
		Level:      conn.LevelSession.String(),
		ID:         s.ID(),
		UseCount:   s.UseCount() - 1,
		Flags:      uint32(s.Flags()),
		Owner:      s.own.owner,
		Group:      s.own.group,
		Mode:       s.own.mode.String(),
		State:      s.State().String(),
		Generation: s.Generation(),
		Server:     s.server,
		LocalAddr:  s.LocalAddr(),
		User:       s.account.User,
		Domain:     s.account.Domain,
	}
}

func (sh *Share) record() Record {
	return Record{
		Level:      conn.LevelShare.String(),
		ID:         sh.ID(),
		ParentID:   sh.session.ID(),
		UseCount:   sh.UseCount() - 1,
		Flags:      uint32(sh.Flags()),
		Owner:      sh.own.owner,
		Group:      sh.own.group,
		Mode:       sh.own.mode.String(),
		State:      sh.State().String(),
		Generation: sh.Generation(),
		Name:       sh.name,
		Type:       sh.stype.String(),
		TreeID:     uint32(sh.TreeID()),
		Valid:      sh.IsValid(),
	}
}

// Dump writes the snapshot to w, one record per line.
func (m *Manager) Dump(ctx context.Context, w io.Writer) error {
	records, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
	}
	return nil
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
