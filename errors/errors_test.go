package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesCode(t *testing.T) {
	err := New(CodeNotFound)
	require.NotNil(t, err)
	assert.Equal(t, CodeNotFound, err.Code())
	assert.Contains(t, err.Error(), "not found")
}

func TestNewWithMessage_AppendsDetail(t *testing.T) {
	err := NewWithMessage(CodeAlreadyOpen, `"/Samples/0-FOO"`)
	assert.Contains(t, err.Error(), "already open")
	assert.Contains(t, err.Error(), "/Samples/0-FOO")
}

func TestWithMessage_Chains(t *testing.T) {
	base := New(CodeInvalidPath)
	chained := base.WithMessage("too many components")
	assert.NotEqual(t, base.Error(), chained.Error())
	assert.Equal(t, base.Code(), chained.Code())
}

func TestWrap_PreservesCodeAndExposesCause(t *testing.T) {
	cause := assert.AnError
	wrapped := New(CodeIoError).Wrap(cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeIoError, wrapped.Code())
}

func TestIs_MatchesSameCodeOnly(t *testing.T) {
	a := New(CodeNoSpaceLeft)
	b := NewWithMessage(CodeNoSpaceLeft, "need 19 clusters")
	c := New(CodeFileTooLarge)

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestIsCode(t *testing.T) {
	err := New(CodeEndOfFile)
	assert.True(t, IsCode(err, CodeEndOfFile))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(nil, CodeEndOfFile))
}

func TestEveryCodeIsTaggedWithLibraryID(t *testing.T) {
	codes := []Code{
		CodeInvalidPath, CodeNotFound, CodeNotADirectory, CodeWrongFs,
		CodeMediaTypeNotHdd, CodeFsSizeMismatch, CodeDiskTooSmall, CodeNotAFile,
		CodeNonexistentDisk, CodeUnsupportedOperation, CodeAlreadyOpen,
		CodeNoSpaceLeft, CodeFileTooLarge, CodeEmptyEntry, CodeElementTypeMismatch,
		CodeEndOfFile, CodeFailedToOpenFile, CodeIoError, CodeChainSizeMismatch,
		CodeWtf,
	}
	seen := make(map[Code]bool)
	for _, c := range codes {
		assert.Equal(t, LibraryS7XX, c&0xFF00, "code %v missing library tag", c)
		assert.False(t, seen[c], "duplicate code value %#04x", uint16(c))
		seen[c] = true
	}
}
