package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbconn/pkg/smbconn"
)

func TestRecordTable(t *testing.T) {
	records := RecordTable{
		{Level: "session", ID: 1, UseCount: 2, Owner: 1000, Group: smbconn.AnyGroup, Mode: "0700", State: "Good", Generation: 3,
			Server: "nas:445", User: "alice", Domain: "CORP"},
		{Level: "share", ID: 2, ParentID: 1, UseCount: 1, Owner: 1000, Group: 100, Mode: "0755", State: "Good", Generation: 3,
			Name: "home", Type: "disk", TreeID: 0x1f},
	}

	rows := records.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "-", "session nas:445", "2", "1000", "*", "0700", "Good", "3", `CORP\alice`}, rows[0])
	assert.Equal(t, []string{"2", "1", "  share home", "1", "1000", "100", "0755", "Good", "3", "disk tid=0x1f stale"}, rows[1])

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, records))
	assert.Contains(t, buf.String(), "OBJECT")
	assert.Contains(t, buf.String(), "session nas:445")
}
