package plugins

import (
	"cmp"
	"context"
	"iter"
	"net/url"
	"os"
	"slices"
	"time"

	"howett.net/plist"

	"bnpl/internal/option"
	"bnpl/internal/plugin"
	"bnpl/internal/services"
	"bnpl/internal/sound"
)

type itunesLibrary struct {
	Tracks map[string]itunesTrack `plist:"Tracks"`
}

type itunesTrack struct {
	TrackID     int64     `plist:"Track ID"`
	Name        string    `plist:"Name"`
	Artist      string    `plist:"Artist"`
	Album       string    `plist:"Album"`
	Genre       string    `plist:"Genre"`
	TotalTime   int64     `plist:"Total Time"`
	TrackNumber int64     `plist:"Track Number"`
	Year        int64     `plist:"Year"`
	BPM         int64     `plist:"BPM"`
	DateAdded   time.Time `plist:"Date Added"`
	Location    string    `plist:"Location"`
}

// Songs reads an iTunes Library XML export and yields one sound per track.
type Songs struct {
	plugin.Base
}

// NewSongs returns the itunes.songs extractor.
func NewSongs() *Songs {
	return &Songs{Base: plugin.NewBase("songs", plugin.CapExtractor,
		"Extract sounds from your iTunes library.",
		option.New("library_xml", option.KindPath, option.Required(),
			option.Describe("Path to the iTunes Library.xml export")),
	)}
}

// Extract yields tracks ordered by track id. Tracks without a local file
// location are reported as per-item errors.
func (s *Songs) Extract(ctx context.Context, call *plugin.Call) iter.Seq2[*sound.Sound, error] {
	path := call.Options.String("library_xml")
	return func(yield func(*sound.Sound, error) bool) {
		tracks, err := readItunesLibrary(path)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, track := range tracks {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(track.sound()) {
				return
			}
		}
	}
}

func readItunesLibrary(path string) ([]itunesTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "itunes", "open", path, err)
	}
	defer f.Close()

	var lib itunesLibrary
	if err := plist.NewDecoder(f).Decode(&lib); err != nil {
		return nil, services.Wrap(services.ErrValidation, "itunes", "decode", path, err)
	}
	tracks := make([]itunesTrack, 0, len(lib.Tracks))
	for _, track := range lib.Tracks {
		tracks = append(tracks, track)
	}
	slices.SortFunc(tracks, func(a, b itunesTrack) int { return cmp.Compare(a.TrackID, b.TrackID) })
	return tracks, nil
}

func (t itunesTrack) sound() (*sound.Sound, error) {
	path, err := t.localPath()
	if err != nil {
		return nil, err
	}
	s := sound.New(path)
	props := map[string]any{
		"title":  t.Name,
		"artist": t.Artist,
		"album":  t.Album,
		"genre":  t.Genre,
	}
	for key, value := range props {
		if value == "" {
			continue
		}
		if err := s.SetProperty(key, value); err != nil {
			return nil, err
		}
	}
	numbers := map[string]int64{"track": t.TrackNumber, "year": t.Year, "bpm": t.BPM}
	for key, value := range numbers {
		if value == 0 {
			continue
		}
		if err := s.SetProperty(key, value); err != nil {
			return nil, err
		}
	}
	if t.TotalTime > 0 {
		if err := s.SetProperty("duration", float64(t.TotalTime)/1000); err != nil {
			return nil, err
		}
	}
	if !t.DateAdded.IsZero() {
		if err := s.SetProperty("itunes_added_at", t.DateAdded); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// localPath turns a file:// location into a filesystem path.
func (t itunesTrack) localPath() (string, error) {
	label := t.Name
	if label == "" {
		label = "track"
	}
	if t.Location == "" {
		return "", services.Wrap(services.ErrValidation, "itunes", "location",
			label+" has no location", nil)
	}
	u, err := url.Parse(t.Location)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "itunes", "location", label, err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", services.Wrap(services.ErrValidation, "itunes", "location",
			label+" is not a local file: "+t.Location, nil)
	}
	return u.Path, nil
}
