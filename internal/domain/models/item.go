package models

import "time"

// ItemKind distinguishes the two entity types that appear in mixed listings.
type ItemKind string

const (
	ItemFolder ItemKind = "folder"
	ItemFile   ItemKind = "file"
)

// Item is a folder or a file. Exactly one of Folder and File is set,
// matching Kind.
type Item struct {
	Kind   ItemKind `json:"kind"`
	Folder *Folder  `json:"folder,omitempty"`
	File   *File    `json:"file,omitempty"`
}

// FolderItem wraps a folder.
func FolderItem(f Folder) Item {
	return Item{Kind: ItemFolder, Folder: &f}
}

// FileItem wraps a file.
func FileItem(f File) Item {
	return Item{Kind: ItemFile, File: &f}
}

// Name returns the display name of the wrapped entity.
func (i Item) Name() string {
	switch i.Kind {
	case ItemFolder:
		return i.Folder.Name
	case ItemFile:
		return i.File.Name
	}
	return ""
}

// DeletedAt returns the trash timestamp of the wrapped entity, if any.
func (i Item) DeletedAt() *time.Time {
	switch i.Kind {
	case ItemFolder:
		return i.Folder.DeletedAt
	case ItemFile:
		return i.File.DeletedAt
	}
	return nil
}
