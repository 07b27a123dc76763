package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/gojvm-reload/internal/classgen"
	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

func op(code byte, idx uint16) []byte {
	return append([]byte{code}, classgen.U2(idx)...)
}

// mainClass prints the value of an IntSupplier lambda whose body returns 1:
//
//	public static void main(String[] args) {
//	    IntSupplier s = () -> 1;
//	    System.out.println(s.getAsInt());
//	}
func mainClass() *classgen.Builder {
	b := classgen.New("Main", "")
	out := b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	printlnRef := b.Methodref("java/io/PrintStream", "println", "(I)V")
	getAsInt := b.InterfaceMethodref("java/util/function/IntSupplier", "getAsInt", "()I")
	site := b.LambdaSite("getAsInt", "()Ljava/util/function/IntSupplier;", "()I",
		classgen.Impl{Kind: classfile.RefInvokeStatic, Owner: "Main", Name: "lambda$main$0", Desc: "()I"}, "()I")

	code := op(0xB2, out)
	code = append(append(code, op(0xBA, site)...), 0, 0)
	code = append(append(code, op(0xB9, getAsInt)...), 1, 0)
	code = append(code, op(0xB6, printlnRef)...)
	code = append(code, 0xB1)
	b.Method(classfile.AccPublic|classfile.AccStatic, "main", "([Ljava/lang/String;)V", 3, 1, code)
	b.Method(classfile.AccPrivate|classfile.AccStatic, "lambda$main$0", "()I", 1, 0, []byte{0x04, 0xAC})
	return b
}

// executorClass returns n from the relocated lambda body.
func executorClass(n byte) *classgen.Builder {
	b := classgen.New("Main$$E"+strconv.Itoa(int(n)), "")
	b.Method(classfile.AccPublic|classfile.AccStatic, "lambda$main$0", "()I", 1, 0, []byte{0x10, n, 0xAC})
	return b
}

func writeClass(t *testing.T, dir string, b *classgen.Builder, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".class")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gojvm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GOJVM_LOG_LEVEL", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const quiet = "logging:\n  level: error\n  format: json\n"

func TestRun(t *testing.T) {
	t.Run("without executors", func(t *testing.T) {
		dir := t.TempDir()
		path := writeClass(t, dir, mainClass(), "Main")

		out, err := execute(t, "--config", writeConfig(t, quiet), "run", path)
		require.NoError(t, err)
		assert.Equal(t, "1\n", out)
	})

	t.Run("newest executor wins", func(t *testing.T) {
		dir := t.TempDir()
		path := writeClass(t, dir, mainClass(), "Main")
		writeClass(t, dir, executorClass(2), "Main$$E2")
		writeClass(t, dir, executorClass(1), "Main$$E1")

		out, err := execute(t, "--config", writeConfig(t, quiet+"metrics:\n  enabled: true\n"), "run", path)
		require.NoError(t, err)
		assert.Equal(t, "2\n", out)
	})

	t.Run("executors disabled", func(t *testing.T) {
		dir := t.TempDir()
		path := writeClass(t, dir, mainClass(), "Main")
		writeClass(t, dir, executorClass(1), "Main$$E1")

		out, err := execute(t, "--config", writeConfig(t, quiet+"reload:\n  apply_executors: false\n"), "run", path)
		require.NoError(t, err)
		assert.Equal(t, "1\n", out)
	})

	t.Run("gap in executor versions", func(t *testing.T) {
		dir := t.TempDir()
		path := writeClass(t, dir, mainClass(), "Main")
		writeClass(t, dir, executorClass(2), "Main$$E2")

		_, err := execute(t, "--config", writeConfig(t, quiet), "run", path)
		assert.ErrorContains(t, err, "want Main$$E1")
	})
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := writeClass(t, t.TempDir(), mainClass(), "Main")
	_, err := execute(t, "--config", writeConfig(t, "logging:\n  level: loud\n"), "run", path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestExecutorFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Main$$E10.class", "Main$$E2.class", "Main$$Ex.class", "Other$$E1.class", "Main.class"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	files, err := executorFiles(dir, "Main")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 2, files[0].version)
	assert.Equal(t, 10, files[1].version)
}

func TestSites(t *testing.T) {
	b := mainClass()
	b.AltLambdaSite("get", "()Ljava/util/function/IntSupplier;", "()I",
		classgen.Impl{Kind: classfile.RefInvokeStatic, Owner: "Main", Name: "lambda$main$0", Desc: "()I"}, "()I")
	path := writeClass(t, t.TempDir(), b, "Main")

	out, err := execute(t, "--config", writeConfig(t, quiet), "sites", path)
	require.NoError(t, err)
	assert.Contains(t, out, "getAsInt()Ljava/util/function/IntSupplier;")
	assert.Contains(t, out, "java/lang/invoke/LambdaMetafactory.metafactory")
	assert.Contains(t, out, "Main.lambda$main$0:()I")
	assert.Contains(t, out, "java/lang/invoke/LambdaMetafactory.altMetafactory")
}
