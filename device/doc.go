// Package device implements the data-parallel execution substrate that the
// scan and radix sort orchestrators run on.
//
// A Device is an explicitly constructed context: it owns device memory,
// executes launches and keeps statistics. Work is expressed as a Launch: a
// kernel Body run by Workers workers grouped into cohorts of CohortSize.
// Workers of one cohort share memory (Launch.NewShared) and synchronize with
// Worker.Barrier. Cohorts cannot synchronize with each other; the only
// cross-cohort ordering is the completion of a whole dispatch.
//
// # Basic Usage
//
//	dev, err := device.Open(device.WithMemory(device.MemoryMapped))
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	buf, err := device.Alloc[uint32](dev, len(host))
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//	if err := buf.Upload(host); err != nil {
//	    return err
//	}
//	err = dev.Dispatch(ctx, device.Launch{
//	    Name:       "double",
//	    Workers:    (len(host) + 255) / 256 * 256,
//	    CohortSize: 256,
//	    Body: func(w *device.Worker) {
//	        if i := w.GlobalID(); i < len(host) {
//	            buf.Data()[i] *= 2
//	        }
//	    },
//	})
//
// # Package Structure
//
//   - Context: device.go (Open, Close, Info, Stats), options.go (Option, With* functions)
//   - Memory: buffer.go (Alloc, Buffer), memory.go (heap and mapped backends), prefault_*.go
//   - Execution: launch.go (Launch, Worker, barrier), dispatch.go (Dispatch), stream.go (Stream)
//   - Utility kernels: kernels.go (CopyKernel, FillKernel)
package device
