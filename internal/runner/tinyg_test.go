package runner

import "testing"

func TestTinyGParsesQueueReport(t *testing.T) {
	r := NewTinyG()
	ev := r.Parse(`{"qr":28,"qi":0,"qo":1}`)
	if ev.Kind != KindQR {
		t.Fatalf("kind = %v, want KindQR", ev.Kind)
	}
	if ev.QueueReport.QR != 28 || ev.QueueReport.QO != 1 {
		t.Fatalf("queue report = %+v, want QR=28 QO=1", ev.QueueReport)
	}
}

func TestTinyGParsesStatusReport(t *testing.T) {
	r := NewTinyG()
	ev := r.Parse(`{"sr":{"posx":1.500,"posy":2.500,"posz":0.000,"stat":5}}`)
	if ev.Kind != KindSR {
		t.Fatalf("kind = %v, want KindSR", ev.Kind)
	}
	if ev.Status.MPos.X != 1.5 || ev.Status.MPos.Y != 2.5 {
		t.Fatalf("mpos = %+v, want X=1.5 Y=2.5", ev.Status.MPos)
	}
	if ev.Status.MachineState != "Run" {
		t.Fatalf("machine state = %q, want Run", ev.Status.MachineState)
	}
	if r.IsIdle() {
		t.Fatal("expected IsIdle to be false while stat is Run")
	}
}

func TestTinyGParsesRXReport(t *testing.T) {
	r := NewTinyG()
	ev := r.Parse(`{"rx":128}`)
	if ev.Kind != KindRX {
		t.Fatalf("kind = %v, want KindRX", ev.Kind)
	}
}

func TestTinyGParsesFooterOKAndError(t *testing.T) {
	r := NewTinyG()

	ev := r.Parse(`{"r":{},"f":[1,0,10]}`)
	if ev.Kind != KindOK {
		t.Fatalf("kind = %v, want KindOK for a zero-status footer", ev.Kind)
	}

	ev = r.Parse(`{"r":{},"f":[1,108,10]}`)
	if ev.Kind != KindError || ev.Error.Code != 108 {
		t.Fatalf("footer error = %+v, want KindError code 108", ev)
	}
}

func TestTinyGParsesErrorObjectAndSetsAlarm(t *testing.T) {
	r := NewTinyG()
	ev := r.Parse(`{"er":{"fb":1,"st":204,"msg":"Unsupported command"}}`)
	if ev.Kind != KindAlarm {
		t.Fatalf("kind = %v, want KindAlarm", ev.Kind)
	}
	if !r.IsAlarm() {
		t.Fatal("expected IsAlarm after an er object")
	}
	if r.IsIdle() {
		t.Fatal("expected IsIdle to be false once alarmed")
	}
}

func TestTinyGParsesBareROK(t *testing.T) {
	r := NewTinyG()
	ev := r.Parse(`{"r":{"fv":0.99}}`)
	if ev.Kind != KindOK {
		t.Fatalf("kind = %v, want KindOK", ev.Kind)
	}
}
