// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhdfs

import (
	"fmt"
	"time"
)

type (
	// FileStatus describes a file or a directory
	FileStatus struct {
		AccessTime       int64  `json:"accessTime"`
		BlockSize        int64  `json:"blockSize"`
		ChildrenNum      int    `json:"childrenNum"`
		FileID           int64  `json:"fileId"`
		Group            string `json:"group"`
		Length           int64  `json:"length"`
		ModificationTime int64  `json:"modificationTime"`
		Owner            string `json:"owner"`
		PathSuffix       string `json:"pathSuffix"`
		Permission       string `json:"permission"`
		Replication      int    `json:"replication"`
		Symlink          string `json:"symlink,omitempty"`
		Type             string `json:"type"`
	}

	ContentSummary struct {
		DirectoryCount int64 `json:"directoryCount"`
		FileCount      int64 `json:"fileCount"`
		Length         int64 `json:"length"`
		Quota          int64 `json:"quota"`
		SpaceConsumed  int64 `json:"spaceConsumed"`
		SpaceQuota     int64 `json:"spaceQuota"`
	}

	FileChecksum struct {
		Algorithm string `json:"algorithm"`
		Bytes     string `json:"bytes"`
		Length    int    `json:"length"`
	}

	// RemoteException is the error body of a non-2xx answer
	RemoteException struct {
		Exception     string `json:"exception"`
		JavaClassName string `json:"javaClassName"`
		Message       string `json:"message"`
	}

	// RemoteError is returned by the typed Response decoders for non-2xx answers
	RemoteError struct {
		StatusCode int
		Exception  RemoteException
	}

	fileStatusEnvelope struct {
		FileStatus FileStatus `json:"FileStatus"`
	}

	fileStatusesEnvelope struct {
		FileStatuses struct {
			FileStatus []FileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}

	contentSummaryEnvelope struct {
		ContentSummary ContentSummary `json:"ContentSummary"`
	}

	fileChecksumEnvelope struct {
		FileChecksum FileChecksum `json:"FileChecksum"`
	}

	remoteExceptionEnvelope struct {
		RemoteException RemoteException `json:"RemoteException"`
	}

	booleanEnvelope struct {
		Boolean bool `json:"boolean"`
	}

	pathEnvelope struct {
		Path string `json:"Path"`
	}
)

const (
	TypeFile      = "FILE"
	TypeDirectory = "DIRECTORY"
	TypeSymlink   = "SYMLINK"

	exceptionFileNotFound = "FileNotFoundException"
)

func (fs *FileStatus) IsDir() bool {
	return fs.Type == TypeDirectory
}

func (fs *FileStatus) ModTime() time.Time {
	return time.Unix(0, fs.ModificationTime*int64(time.Millisecond))
}

func (fs *FileStatus) AccTime() time.Time {
	return time.Unix(0, fs.AccessTime*int64(time.Millisecond))
}

func (re *RemoteError) Error() string {
	if re.Exception.Exception == "" {
		return fmt.Sprintf("webhdfs: status %d", re.StatusCode)
	}
	return fmt.Sprintf("webhdfs: status %d, %s: %s", re.StatusCode, re.Exception.Exception, re.Exception.Message)
}
