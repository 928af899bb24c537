package assets

// State is the derived asset view for one slug.
type State struct {
	Slug             string
	LocalImages      int
	HasCloudMetadata bool
	CloudPhotoCount  int
	HasSound         bool
}

// HasLocalImages reports whether any local image exists.
func (s State) HasLocalImages() bool { return s.LocalImages > 0 }

// Uploaded reports whether the cloud metadata carries at least one photo.
func (s State) Uploaded() bool { return s.HasCloudMetadata && s.CloudPhotoCount > 0 }

// Inspector computes State from both stores.
type Inspector struct {
	Local *LocalStore
	Cloud *CloudStore
}

// Inspect recomputes the state of slug. Unreadable metadata counts as absent.
func (i Inspector) Inspect(slug string) (State, error) {
	st := State{Slug: slug}
	n, err := i.Local.ImageCount(slug)
	if err != nil {
		return st, err
	}
	st.LocalImages = n
	if meta, err := i.Cloud.Load(slug); err == nil {
		st.HasCloudMetadata = true
		st.CloudPhotoCount = meta.PhotoCount()
		st.HasSound = meta.HasSound()
	}
	return st, nil
}
