package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CatalogSuite struct {
	suite.Suite
	path    string
	catalog *Catalog
}

func (s *CatalogSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "nested", "catalog.db")
	c, err := Open(s.path)
	s.Require().NoError(err)
	s.catalog = c
}

func (s *CatalogSuite) TearDownTest() {
	s.catalog.Close()
}

func (s *CatalogSuite) TestMigratedToLatest() {
	version, dirty, err := s.catalog.MigrateVersion()
	s.Require().NoError(err)
	s.False(dirty)
	s.Equal(uint(3), version)
}

func (s *CatalogSuite) TestReopenKeepsData() {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.catalog.StartRecording("output/motion_1.avi", 640, 360, 20, start)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.Close())

	c, err := Open(s.path)
	s.Require().NoError(err)
	s.catalog = c

	recs, err := c.Recordings()
	s.Require().NoError(err)
	s.Len(recs, 1)
}

func (s *CatalogSuite) TestRecordingLifecycle() {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.catalog.StartRecording("output/motion_20240501_120000.avi", 640, 360, 20, start)
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, id)

	recs, err := s.catalog.Recordings()
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.True(recs[0].EndedAt.IsZero())

	end := start.Add(4 * time.Second)
	s.Require().NoError(s.catalog.FinishRecording(id, 80, end))
	s.Require().NoError(s.catalog.SetTranscoded("output/motion_20240501_120000.avi", "output/motion_20240501_120000.mp4"))

	recs, err = s.catalog.Recordings()
	s.Require().NoError(err)
	r := recs[0]
	s.Equal(id, r.ID)
	s.Equal(640, r.Width)
	s.Equal(360, r.Height)
	s.Equal(20.0, r.FPS)
	s.Equal(80, r.Frames)
	s.True(start.Equal(r.StartedAt))
	s.True(end.Equal(r.EndedAt))
	s.Equal("output/motion_20240501_120000.mp4", r.TranscodedPath)
}

func (s *CatalogSuite) TestFinishUnknownRecording() {
	s.Error(s.catalog.FinishRecording(uuid.New(), 1, time.Now()))
}

func (s *CatalogSuite) TestSnapshots() {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recID, err := s.catalog.StartRecording("output/motion_1.avi", 640, 360, 20, start)
	s.Require().NoError(err)

	_, err = s.catalog.AddSnapshot(Snapshot{Path: "output/snapshot_a.jpg", TakenAt: start, Regions: 1})
	s.Require().NoError(err)
	_, err = s.catalog.AddSnapshot(Snapshot{
		RecordingID: uuid.NullUUID{UUID: recID, Valid: true},
		Path:        "output/snapshot_b.jpg",
		TakenAt:     start.Add(time.Second),
		Regions:     2,
		Labels:      []string{"person", "dog"},
	})
	s.Require().NoError(err)

	snaps, err := s.catalog.Snapshots()
	s.Require().NoError(err)
	s.Require().Len(snaps, 2)

	s.False(snaps[0].RecordingID.Valid)
	s.Nil(snaps[0].Labels)
	s.Equal(recID, snaps[1].RecordingID.UUID)
	s.Equal([]string{"person", "dog"}, snaps[1].Labels)
	s.Equal(2, snaps[1].Regions)
}

func (s *CatalogSuite) TestSnapshotForeignKey() {
	_, err := s.catalog.AddSnapshot(Snapshot{
		RecordingID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Path:        "output/orphan.jpg",
		TakenAt:     time.Now(),
	})
	s.Error(err)
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func TestMigrateDownAndUp(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MigrateDown())
	version, _, err := c.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	require.NoError(t, c.MigrateUp())
	version, _, err = c.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
}
