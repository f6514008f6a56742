package download

import (
	"fmt"
	"path/filepath"
)

// TempDirName holds in-flight track files under the output directory.
// Finished tracks are moved out atomically, so a partially-downloaded track
// never appears at a permanent path.
const TempDirName = ".archive-temp"

// taskPaths is the deterministic file layout for one download task.
type taskPaths struct {
	tempDir    string
	tempVideo  string // {outputDir}/.archive-temp/{videoId}_video_{itag}.{ext}
	tempAudio  string // {outputDir}/.archive-temp/{videoId}_audio_{itag}.{ext}
	finalVideo string // {outputDir}/{videoId}_video_{itag}.{ext}
	finalAudio string // {outputDir}/{videoId}_audio_{itag}.{ext}
	combined   string // {outputDir}/{videoId}.{ext}
}

func computePaths(task *Task) taskPaths {
	p := taskPaths{tempDir: filepath.Join(task.OutputDir, TempDirName)}
	if task.Streams.Video != nil {
		name := fmt.Sprintf("%s_video_%s%s", task.VideoID, task.Streams.Video.Itag, task.Streams.Video.Ext())
		p.tempVideo = filepath.Join(p.tempDir, name)
		p.finalVideo = filepath.Join(task.OutputDir, name)
	}
	if task.Streams.Audio != nil {
		name := fmt.Sprintf("%s_audio_%s%s", task.VideoID, task.Streams.Audio.Itag, task.Streams.Audio.Ext())
		p.tempAudio = filepath.Join(p.tempDir, name)
		p.finalAudio = filepath.Join(task.OutputDir, name)
	}
	if task.Streams.Combined != nil {
		p.combined = filepath.Join(task.OutputDir, task.VideoID+task.Streams.Combined.Ext())
	}
	return p
}

func (p taskPaths) tempFiles() []string {
	var files []string
	if p.tempVideo != "" {
		files = append(files, p.tempVideo)
	}
	if p.tempAudio != "" {
		files = append(files, p.tempAudio)
	}
	return files
}
