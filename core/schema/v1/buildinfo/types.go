package buildinfo

// Record is the build.json document embedded into distribution archives.
type Record struct {
	Download            string `json:"download"`
	Hash                string `json:"hash"`
	Version             string `json:"version"`
	ForkID              string `json:"fork_id"`
	EngineVersion       string `json:"engine_version"`
	ManifestURL         string `json:"manifest_url"`
	ManifestDownloadURL string `json:"manifest_download_url"`
	ManifestHash        string `json:"manifest_hash"`
}
