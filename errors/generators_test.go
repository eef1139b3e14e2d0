package errors

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewResourceNotFoundError(t *testing.T) {
	type args struct {
		message string
		details Details
	}
	tests := []struct {
		name string
		args args
		want Error
	}{
		{
			name: "without details",
			args: args{
				message: "hello world",
				details: nil,
			},
			want: Error{
				Code:    ErrNotFound,
				Kind:    KindResourceNotFound,
				Err:     nil,
				Message: "hello world",
				Details: nil,
			},
		},
		{
			name: "with details",
			args: args{
				message: "hello world",
				details: Details{"hello": "world"},
			},
			want: Error{
				Code:    ErrNotFound,
				Kind:    KindResourceNotFound,
				Err:     nil,
				Message: "hello world",
				Details: Details{"hello": "world"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err, ok := Cast(NewResourceNotFoundError(tt.args.message, tt.args.details)); !ok || !reflect.DeepEqual(err, tt.want) {
				t.Errorf("NewResourceNotFoundError() error = %v, ok = %v, want %v, ok = %v", err, ok, tt.want, true)
			}
		})
	}
}

func TestNewExecQueryError(t *testing.T) {
	orig := errors.New("connection reset")
	err, ok := Cast(NewExecQueryError(orig, "exec query", "SELECT 1"))
	if !ok {
		t.Fatal("should be rich error")
	}
	want := Error{
		Code:    ErrInternal,
		Kind:    KindDBQuery,
		Err:     orig,
		Message: "exec query",
		Details: Details{"query": "SELECT 1"},
	}
	if !reflect.DeepEqual(err, want) {
		t.Errorf("NewExecQueryError() = %v, want %v", err, want)
	}
}

func TestNewUnknownDeviceError(t *testing.T) {
	err, ok := Cast(NewUnknownDeviceError("usb|1"))
	if !ok {
		t.Fatal("should be rich error")
	}
	if err.Code != ErrNotFound || err.Kind != KindUnknownDevice {
		t.Errorf("NewUnknownDeviceError() code = %v, kind = %v", err.Code, err.Kind)
	}
	if err.Details["device_id"] != "usb|1" {
		t.Errorf("NewUnknownDeviceError() details = %v", err.Details)
	}
}
